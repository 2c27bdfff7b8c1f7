// Package memcached implements the connection-per-thread front end: it owns
// a listening socket, accepts connections up to a configured worker limit,
// and speaks the protocol package's request format against a cache.Storage.
package memcached

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Konopatkin-OV/afina/cache"
	"github.com/Konopatkin-OV/afina/log"
	"github.com/Konopatkin-OV/afina/pool"
	"github.com/Konopatkin-OV/afina/recycle"
)

// workerIdleTimeout bounds how long a command-handling worker above the
// pool's low watermark sits idle before it is retired.
const workerIdleTimeout = 30 * time.Second

const (
	// RecvBufferSize is the fixed size of each connection's receive
	// buffer. A command header plus its argument body must fit within it.
	RecvBufferSize = 1024

	acceptBacklog = 5

	oversizeMessage = "Command arguments are too long\r\n"
	limitMessage    = "Connection limit exceeded\r\n"
)

// Server is a TCP front end for a cache.Storage. The zero value is not
// usable; construct with NewServer.
type Server struct {
	Storage cache.Storage
	Pool    *recycle.Pool
	Log     log.Logger

	maxAcceptors int
	maxWorkers   int

	workers *pool.Pool

	ln net.Listener

	running int32 // accessed only via atomic ops

	workMu      sync.Mutex
	workersDone *sync.Cond
	curWorkers  int

	acceptDone chan struct{}
}

// NewServer constructs a Server bound to storage. maxWorkers bounds the
// number of concurrently served connections; maxAcceptors is accepted for
// interface symmetry with the original design but only one acceptor
// goroutine is ever spawned.
func NewServer(storage cache.Storage, maxAcceptors, maxWorkers int, l log.Logger) *Server {
	if l == nil {
		l = log.NewLogger(log.ErrorLevel, os.Stderr)
	}
	s := &Server{
		Storage:      storage,
		Pool:         recycle.NewPool(),
		Log:          l,
		maxAcceptors: maxAcceptors,
		maxWorkers:   maxWorkers,
	}
	s.workersDone = sync.NewCond(&s.workMu)
	s.workers = pool.New(1, maxWorkers, maxWorkers, workerIdleTimeout, l)
	return s
}

// Start opens a TCP/IPv4 listening socket bound to addr with SO_REUSEADDR
// and a fixed backlog, then spawns the acceptor goroutine. Go already
// reports EPIPE as a write error instead of raising SIGPIPE, so unlike the
// original C++ server there is no signal mask to install here.
func (s *Server) Start(addr string) error {
	ln, err := listenReuseAddr(addr)
	if err != nil {
		return errors.Wrap(err, "memcached: listen")
	}
	s.ln = ln
	atomic.StoreInt32(&s.running, 1)
	s.acceptDone = make(chan struct{})
	s.workers.Start()
	go s.onRun()
	return nil
}

func listenReuseAddr(addr string) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, stackerr.Wrap(err)
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if tcpAddr.IP != nil {
		copy(sa.Addr[:], tcpAddr.IP.To4())
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, stackerr.Wrap(err)
	}
	if err := unix.Listen(fd, acceptBacklog); err != nil {
		unix.Close(fd)
		return nil, stackerr.Wrap(err)
	}
	f := os.NewFile(uintptr(fd), "memcached-listener")
	ln, err := net.FileListener(f)
	f.Close() // net.FileListener dup()s fd; the original is no longer needed.
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	return ln, nil
}

// onRun is the acceptor loop. It runs until running is cleared and the
// listening socket is closed by Stop.
func (s *Server) onRun() {
	defer close(s.acceptDone)
	for s.isRunning() {
		c, err := s.ln.Accept()
		if err != nil {
			// Stop() closes the listener to unblock exactly this Accept.
			continue
		}
		s.Log.Debugf("Accepted connection from %s.", c.RemoteAddr())

		s.workMu.Lock()
		if s.curWorkers == s.maxWorkers {
			s.workMu.Unlock()
			if _, err := c.Write([]byte(limitMessage)); err != nil {
				s.Log.Errorf("Failed to write connection limit response: %v", err)
			}
			c.Close()
			continue
		}
		s.curWorkers++
		s.workMu.Unlock()

		if !s.workers.Execute(func() { s.onCommand(c) }) {
			// The pool sized its high watermark and queue to maxWorkers, so
			// this only fires while draining during Stop.
			s.finishWorker(c)
		}
	}
	s.Log.Warn("Network stopped.")
}

func (s *Server) isRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Stop clears the running flag and waits until every in-flight worker has
// finished, then closes the listening socket. Go's net.Listener.Close
// both unblocks a pending Accept and releases the descriptor, collapsing
// the separate shutdown()/close() steps of a raw-socket implementation
// into one call; Join below only needs to wait for the acceptor goroutine.
func (s *Server) Stop() {
	atomic.StoreInt32(&s.running, 0)

	s.workMu.Lock()
	for s.curWorkers > 0 {
		s.workersDone.Wait()
	}
	s.workMu.Unlock()

	s.workers.Stop(true)
	s.ln.Close()
}

// Join blocks until the acceptor goroutine has returned. Call it after
// Stop.
func (s *Server) Join() {
	<-s.acceptDone
}
