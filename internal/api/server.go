package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-dtu/internal/device"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/logging"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("api: server already started")

	errNoLogger = errors.New("api: logger is required")
	errNoStore  = errors.New("api: snapshot store is required")
)

// SnapshotReader is the read side of the snapshot store.
type SnapshotReader interface {
	GetCurrent(ctx context.Context, deviceMessageID string) (*device.Snapshot, error)
	ListRecent(ctx context.Context, deviceMessageID string, limit int) ([]device.Snapshot, error)
}

// Check is one component reported by the health endpoint.
type Check struct {
	Name string

	// Critical checks turn the service unhealthy (503) when they fail.
	// Failing non-critical checks only mark it degraded.
	Critical bool

	Fn func(ctx context.Context) error
}

// Deps wires the server to the rest of the service.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Store    SnapshotReader
	Gatherer prometheus.Gatherer // nil means prometheus.DefaultGatherer
	Checks   []Check
	Version  string
}

// Server serves the read-only inspection API and /metrics.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	store    SnapshotReader
	gatherer prometheus.Gatherer
	checks   []Check
	version  string

	mu       sync.Mutex
	httpSrv  *http.Server
	ln       net.Listener
	serveErr chan error
}

// New validates deps. Nothing is bound until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errNoLogger
	case deps.Store == nil:
		return nil, errNoStore
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		store:    deps.Store,
		gatherer: deps.Gatherer,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start binds api.host:api.port and serves in the background. Binding
// errors are returned; a later Serve failure is logged and reported by
// Close.
//
// Parameters:
//   - ctx: Bounds the bind only, not the server lifetime
//
// Returns:
//   - error: ErrAlreadyStarted or the bind failure
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}

	t := s.cfg.Timeouts
	s.ln = ln
	s.serveErr = make(chan error, 1)
	s.httpSrv = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: time.Duration(t.Read) * time.Second,
		ReadTimeout:       time.Duration(t.Read) * time.Second,
		WriteTimeout:      time.Duration(t.Write) * time.Second,
		IdleTimeout:       time.Duration(t.Idle) * time.Second,
	}

	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			s.logger.Error("inspection API stopped serving", "error", err)
		}
		done <- err
	}(s.httpSrv, s.serveErr)

	s.logger.Info("inspection API listening", "address", ln.Addr().String(), "checks", len(s.checks))
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close drains in-flight requests for up to 10s and returns the shutdown
// error, or the error Serve stopped with. It is a no-op before Start.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done := s.httpSrv, s.serveErr
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return <-done
}
