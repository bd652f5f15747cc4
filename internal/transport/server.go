package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/call-signaling/internal/models"
)

// Server accepts WebSocket connections and hands each one to the registered
// connection handlers before any of its events are read.
type Server struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	newID    func() string

	mu       sync.RWMutex
	handlers []func(*Conn)
	conns    map[string]*Conn
}

type Option func(*Server)

// WithLogger sets the logger used for the server and its connections
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIDGenerator replaces the UUID connection id generator
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) {
		s.newID = fn
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by middleware
				return true
			},
		},
		logger: slog.Default(),
		newID:  func() string { return uuid.New().String() },
		conns:  make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnConnection registers fn to run for every accepted connection
func (s *Server) OnConnection(fn func(*Conn)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// ConnectionHandlers returns how many connection handlers are registered
func (s *Server) ConnectionHandlers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "err", err)
		return
	}

	conn := newConn(s.newID(), ws, s.logger)

	s.mu.Lock()
	s.conns[conn.id] = conn
	handlers := append([]func(*Conn){}, s.handlers...)
	s.mu.Unlock()

	conn.OnClose(func() {
		s.mu.Lock()
		delete(s.conns, conn.id)
		s.mu.Unlock()
		s.logger.Info("connection closed", "conn", conn.id)
	})

	// The id goes out before anything else so the peer can attribute its own
	// messages.
	if err := conn.Send(models.EventConnected, models.Connected{ConnectionID: conn.id}); err != nil {
		s.logger.Warn("failed to greet connection", "conn", conn.id, "err", err)
	}

	for _, h := range handlers {
		h(conn)
	}

	s.logger.Info("connection accepted", "conn", conn.id, "remote", r.RemoteAddr)
	conn.Start()
}

// Lookup finds a live connection by id
func (s *Server) Lookup(id string) (*Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// Len returns the number of live connections
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close starts closing every live connection. Close handlers run later on
// each connection's read goroutine; use Shutdown to wait for them.
func (s *Server) Close() {
	for _, c := range s.snapshot() {
		c.Close()
	}
}

// Shutdown closes every live connection and waits until their close handlers
// have finished, or ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	conns := s.snapshot()
	for _, c := range conns {
		c.Close()
	}
	for _, c := range conns {
		select {
		case <-c.Finished():
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d connections: %w", s.Len(), ctx.Err())
		}
	}
	return nil
}

func (s *Server) snapshot() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}
