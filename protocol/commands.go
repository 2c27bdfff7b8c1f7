package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Konopatkin-OV/afina/cache"
)

const (
	StoredResponse      = "STORED"
	NotStoredResponse   = "NOT_STORED"
	ValueResponse       = "VALUE"
	EndResponse         = "END"
	DeletedResponse     = "DELETED"
	NotFoundResponse    = "NOT_FOUND"
	ErrorResponse       = "ERROR"
	ClientErrorResponse = "CLIENT_ERROR"
)

// Command is what Parser.Build returns: an object bound to a single parsed
// request that knows how to run itself against a Storage and produce a
// response payload. The server appends the trailing "\r\n" and, unless the
// request set noreply, writes the payload to the client.
type Command interface {
	// Execute runs the command against s, using body as the command's
	// argument body (nil for header-only commands). It reports the
	// response payload, and whether the client asked to suppress it.
	Execute(s cache.Storage, body []byte) (response string, noreply bool)
}

// item flags are packed as a 4-byte big-endian prefix in front of the raw
// value bytes, since cache.Storage only knows about opaque []byte values
// and the wire protocol still needs to echo flags back on GET.
func encodeItem(flags uint32, value []byte) []byte {
	buf := make([]byte, 4+len(value))
	binary.BigEndian.PutUint32(buf, flags)
	copy(buf[4:], value)
	return buf
}

func decodeItem(raw []byte) (flags uint32, value []byte) {
	if len(raw) < 4 {
		return 0, nil
	}
	return binary.BigEndian.Uint32(raw), raw[4:]
}

type getCommand struct {
	keys []string
}

func newGetCommand(fields [][]byte, gets bool) Command {
	_ = gets // CAS ids are not modeled; gets behaves like get.
	if len(fields) == 0 {
		return clientErrorCommand{ErrMoreFieldsRequired}
	}
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		if err := checkKey(f); err != nil {
			return clientErrorCommand{err}
		}
		keys = append(keys, string(f))
	}
	return getCommand{keys}
}

func (c getCommand) Execute(s cache.Storage, _ []byte) (string, bool) {
	var b strings.Builder
	for _, key := range c.keys {
		raw, ok := s.Get([]byte(key))
		if !ok {
			continue
		}
		flags, value := decodeItem(raw)
		fmt.Fprintf(&b, "%s %s %d %d%s", ValueResponse, key, flags, len(value), Separator)
		b.Write(value)
		b.WriteString(Separator)
	}
	b.WriteString(EndResponse)
	return b.String(), false
}

type storeCommand struct {
	mode    string
	key     string
	flags   uint32
	noreply bool
}

func (c *storeCommand) Execute(s cache.Storage, body []byte) (string, bool) {
	value := encodeItem(c.flags, body)
	var ok bool
	switch c.mode {
	case setCommandName:
		ok = s.Put([]byte(c.key), value)
	case addCommandName:
		ok = s.PutIfAbsent([]byte(c.key), value)
	case replaceCommandName:
		ok = s.Set([]byte(c.key), value)
	case appendCommandName:
		old, present := s.Get([]byte(c.key))
		if !present {
			return NotStoredResponse, c.noreply
		}
		_, oldValue := decodeItem(old)
		merged := make([]byte, len(oldValue)+len(body))
		copy(merged, oldValue)
		copy(merged[len(oldValue):], body)
		ok = s.Set([]byte(c.key), encodeItem(c.flags, merged))
	}
	if !ok {
		return NotStoredResponse, c.noreply
	}
	return StoredResponse, c.noreply
}

type deleteCommand struct {
	key     string
	noreply bool
}

func newDeleteCommand(fields [][]byte) Command {
	key, _, noreply, err := parseKeyFields(fields, 0)
	if err != nil {
		return clientErrorCommand{err}
	}
	if err := checkKey(key); err != nil {
		return clientErrorCommand{err}
	}
	return deleteCommand{string(key), noreply}
}

func (c deleteCommand) Execute(s cache.Storage, _ []byte) (string, bool) {
	if s.Delete([]byte(c.key)) {
		return DeletedResponse, c.noreply
	}
	return NotFoundResponse, c.noreply
}

// errorCommand is returned for an unparsable (empty) header line.
type errorCommand struct{}

func (errorCommand) Execute(cache.Storage, []byte) (string, bool) {
	return ErrorResponse, false
}

// clientErrorCommand is returned when the header parsed but its fields are
// invalid; the command never touches storage.
type clientErrorCommand struct {
	err error
}

func (c clientErrorCommand) Execute(cache.Storage, []byte) (string, bool) {
	return fmt.Sprintf("%s %s", ClientErrorResponse, c.err), false
}
