package memcached

// Config is the fully resolved server configuration. It is produced by
// cmd/memcached's flag/file merge and passed to NewServer.
type Config struct {
	Addr         string
	MaxAcceptors int
	MaxWorkers   int
	CacheSize    int64
	MaxItemSize  int64
	LogLevel     string
}
