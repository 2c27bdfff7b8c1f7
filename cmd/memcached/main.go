package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Konopatkin-OV/afina"
	"github.com/Konopatkin-OV/afina/cache"
	"github.com/Konopatkin-OV/afina/cmd/memcached/config"
	"github.com/Konopatkin-OV/afina/internal/tag"
	"github.com/Konopatkin-OV/afina/log"
	"github.com/Konopatkin-OV/afina/protocol"
)

const usage = `
Config values merge rules:
1) config file value overrides default
2) command line value overrides any
Options:
`

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s", usage)
		flag.PrintDefaults()
	}
}

func main() {
	fileConf := loadConfig()
	l := log.NewLogger(mustLevel(fileConf.LogLevel), mustDestination(fileConf.LogDestination))

	mconf, err := config.Parse(*fileConf)
	if err != nil {
		l.Fatal("Config error: ", err)
	}
	l.Debugf("Config: %#v", mconf)
	if tag.Debug {
		l.Warn("Using debug build. It has more runtime checks and large performance overhead.")
	}

	protocol.MaxItemSize = int(mconf.MaxItemSize)
	storage := cache.NewSyncLRU(mconf.CacheSize)
	s := memcached.NewServer(storage, mconf.MaxAcceptors, mconf.MaxWorkers, l)

	if err := s.Start(mconf.Addr); err != nil {
		l.Fatal("Start error: ", err)
	}
	l.Infof("Serving on %s.", mconf.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	l.Info("Shutting down.")
	s.Stop()
	s.Join()
}

func loadConfig() *config.Config {
	flg := parseFlags()
	fileConf := config.Default()
	if flg.ConfigPath != "" {
		data, err := ioutil.ReadFile(flg.ConfigPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Config file read error:", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, fileConf); err != nil {
			fmt.Fprintln(os.Stderr, "Config parse error:", err)
			os.Exit(1)
		}
	}
	config.Merge(fileConf, &flg.Config)
	return fileConf
}

type flags struct {
	ConfigPath string
	config.Config
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.ConfigPath, "config", "", "path to json config")

	def := config.Default()
	usage := func(usage string, defVal interface{}) string {
		return fmt.Sprintf("%s (default %v)", usage, defVal)
	}
	flag.StringVar(&f.Host, "host", "", usage("host address to bind", def.Host))
	flag.IntVar(&f.Port, "port", 0, usage("port num", def.Port))
	flag.StringVar(&f.LogDestination, "log-destination", "", usage("log destination: stderr, stdout or file path", def.LogDestination))
	flag.StringVar(&f.LogLevel, "log-level", "", usage("log level: debug, info, warn, error, fatal", def.LogLevel))
	flag.StringVar(&f.CacheSize, "cache-size", "", usage("cache size: 2g, 64m", def.CacheSize))
	flag.StringVar(&f.MaxItemSize, "max-item-size", "", usage("max item size: 10m, 1024k", def.MaxItemSize))
	flag.IntVar(&f.MaxWorkers, "max-workers", 0, usage("max concurrent connections", def.MaxWorkers))
	flag.IntVar(&f.MaxAcceptors, "max-acceptors", 0, usage("max acceptor goroutines", def.MaxAcceptors))
	flag.Parse()
	return f
}

func mustLevel(s string) log.Level {
	l, err := log.LevelFromString(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Log level parse error:", err)
		os.Exit(1)
	}
	return l
}

func mustDestination(dest string) io.Writer {
	switch strings.ToLower(dest) {
	case "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	default:
		w, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Log destination open error:", err)
			os.Exit(1)
		}
		return w
	}
}
