package memcached

import (
	"io"
	"net"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/Konopatkin-OV/afina/protocol"
)

const readTimeout = 5 * time.Second

var separatorBytes = []byte(protocol.Separator)

// onCommand owns one accepted connection for its whole lifetime: it reads
// requests off a fixed-size buffer, dispatches parsed commands against the
// shared storage, and writes back responses until the client disconnects,
// a read times out, or a request's arguments do not fit the buffer.
func (s *Server) onCommand(c net.Conn) {
	defer s.finishWorker(c)

	buf := s.Pool.Get(RecvBufferSize)
	defer s.Pool.Put(buf)

	var bufLeft int
	var parser protocol.Parser

	for {
		parser.Reset()

		consumed, ok := s.readHeader(c, buf, &bufLeft, &parser)
		if !ok {
			return
		}

		var bodySize int
		cmd := parser.Build(&bodySize)

		extra := 0
		if bodySize > 0 {
			extra = len(separatorBytes)
		}
		if (bufLeft-consumed)+bodySize+extra > len(buf) {
			c.Write([]byte(oversizeMessage))
			return
		}

		copy(buf, buf[consumed:bufLeft])
		bufLeft -= consumed

		if !s.readBody(c, buf, &bufLeft, bodySize+extra) {
			return
		}

		var body []byte
		if bodySize > 0 {
			if !hasSeparator(buf[bodySize : bodySize+extra]) {
				c.Write([]byte(protocol.ClientErrorResponse + " bad data chunk" + protocol.Separator))
				return
			}
			body = buf[:bodySize]
		}

		response, noreply := cmd.Execute(s.Storage, body)

		copy(buf, buf[bodySize+extra:bufLeft])
		bufLeft -= bodySize + extra

		if noreply {
			continue
		}
		if _, err := io.WriteString(c, response+protocol.Separator); err != nil {
			s.Log.Errorf("Failed to write response to client: %v", stackerr.Wrap(err))
			return
		}
	}
}

func hasSeparator(tail []byte) bool {
	return string(tail) == protocol.Separator
}

// readHeader reads from c into buf until the parser reports a complete
// header, growing bufLeft as bytes arrive. It reports false on disconnect
// or read error/timeout.
func (s *Server) readHeader(c net.Conn, buf []byte, bufLeft *int, parser *protocol.Parser) (consumed int, ok bool) {
	for {
		if parser.Parse(buf, *bufLeft, &consumed) {
			return consumed, true
		}
		n, err := s.read(c, buf[*bufLeft:])
		if n <= 0 || err != nil {
			return 0, false
		}
		*bufLeft += n
	}
}

// readBody reads more bytes from c until bufLeft reaches want.
func (s *Server) readBody(c net.Conn, buf []byte, bufLeft *int, want int) bool {
	for *bufLeft < want {
		n, err := s.read(c, buf[*bufLeft:])
		if n <= 0 || err != nil {
			return false
		}
		*bufLeft += n
	}
	return true
}

func (s *Server) read(c net.Conn, p []byte) (int, error) {
	c.SetReadDeadline(time.Now().Add(readTimeout))
	return c.Read(p)
}

func (s *Server) finishWorker(c net.Conn) {
	c.Close()
	s.workMu.Lock()
	s.curWorkers--
	s.workMu.Unlock()
	s.workersDone.Signal()
}
