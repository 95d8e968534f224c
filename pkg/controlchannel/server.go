package controlchannel

import (
	"errors"
	"net"
	"os"
	"sync"

	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/rpc"
)

// Server accepts connections on a Unix domain socket and serves every
// request by handing it to handler — in practice Manager.Handle, whose
// signature already matches rpc.Handler.
type Server struct {
	handler rpc.Handler

	mu       sync.Mutex
	listener net.Listener
	links    map[*rpc.Link]struct{}
	closed   bool
}

// NewServer creates a Server that dispatches every control-channel request
// to handler.
func NewServer(handler rpc.Handler) *Server {
	return &Server{
		handler: handler,
		links:   make(map[*rpc.Link]struct{}),
	}
}

// Serve binds socketPath and accepts connections until Close is called. It
// removes a stale socket file left behind by a prior unclean exit, the way
// a Unix-socket server conventionally does (mirrors the IPC bridge pattern
// other examples in the pack use for the same reason).
func (s *Server) Serve(socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return net.ErrClosed
	}
	s.listener = listener
	s.mu.Unlock()

	log.Info("controlchannel: listening on " + socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("controlchannel: accept", err)
			continue
		}
		s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	link := rpc.NewLink(conn, s.handler, nil)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.links[link] = struct{}{}
	s.mu.Unlock()

	link.Start()
}

// Close stops accepting connections and closes every active link.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	links := make([]*rpc.Link, 0, len(s.links))
	for l := range s.links {
		links = append(links, l)
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, l := range links {
		l.Close()
	}
	return nil
}
