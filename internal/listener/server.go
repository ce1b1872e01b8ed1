package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-dtu/internal/frame"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
)

const (
	keepAlivePeriod = 30 * time.Second
	readBufferSize  = 8192
)

// FrameSink receives frames read from device connections.
// Submit must copy raw if it keeps it past return.
type FrameSink interface {
	Submit(ctx context.Context, raw []byte) error
}

// Logger defines the logging interface used by the listener.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server is the TCP frame source.
type Server struct {
	cfg    config.ListenerConfig
	sink   FrameSink
	logger Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	cancel context.CancelFunc
	slots  chan struct{}
	wg     sync.WaitGroup
}

// New creates a stopped server.
func New(cfg config.ListenerConfig, sink FrameSink) *Server {
	if cfg.MaxFrameSize <= 0 || cfg.MaxFrameSize > frame.MaxStreamFrame {
		cfg.MaxFrameSize = frame.MaxStreamFrame
	}
	return &Server{
		cfg:    cfg,
		sink:   sink,
		logger: noopLogger{},
		conns:  make(map[net.Conn]struct{}),
	}
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// Start binds the listen address and begins accepting connections in the
// background. ctx bounds the lifetime of the server; Close stops it early.
//
// Returns:
//   - error: ErrDisabled, ErrAlreadyStarted, or the bind error
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	lc := net.ListenConfig{KeepAlive: keepAlivePeriod}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.ln = ln
	s.cancel = cancel
	if s.cfg.MaxConnections > 0 {
		s.slots = make(chan struct{}, s.cfg.MaxConnections)
	}

	s.wg.Add(2)
	go s.acceptLoop(ctx, ln)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		s.shutdown()
	}()

	s.logger.Info("frame listener started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Connections returns the number of open device connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops accepting, closes every open connection and waits for the
// connection goroutines to exit. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	return nil
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		s.ln.Close() //nolint:errcheck // Closing to unblock Accept
	}
	for c := range s.conns {
		c.Close() //nolint:errcheck // Closing to unblock reads
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		if !s.acquireSlot() {
			s.logger.Warn("connection limit reached, rejecting",
				"remote", conn.RemoteAddr().String(),
				"max_connections", s.cfg.MaxConnections,
			)
			conn.Close() //nolint:errcheck // Rejected connection
			continue
		}

		if !s.track(ctx, conn) {
			s.releaseSlot()
			conn.Close() //nolint:errcheck // Shutting down
			return
		}

		s.wg.Add(1)
		go s.serve(ctx, conn)
	}
}

func (s *Server) acquireSlot() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) releaseSlot() {
	if s.slots != nil {
		<-s.slots
	}
}

// track registers conn unless the server is shutting down.
func (s *Server) track(ctx context.Context, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// serve reads frames from one connection until it fails or the server stops.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close() //nolint:errcheck // Connection finished
		s.untrack(conn)
		s.releaseSlot()
		s.wg.Done()
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("device connected", "remote", remote)

	var limiter *rate.Limiter
	if s.cfg.MaxFramesPerSecond > 0 {
		burst := max(int(s.cfg.MaxFramesPerSecond), 1)
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MaxFramesPerSecond), burst)
	}

	r := bufio.NewReaderSize(conn, readBufferSize)
	buf := make([]byte, s.cfg.MaxFrameSize)

	for {
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)) //nolint:errcheck // Best effort
		}

		raw, err := frame.ReadFrame(r, buf)
		if err != nil {
			s.logClose(ctx, remote, err)
			return
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		if err := s.sink.Submit(ctx, raw); err != nil {
			s.logger.Warn("frame not accepted, closing connection",
				"remote", remote,
				"stage", "submit",
				"error", err,
			)
			return
		}
	}
}

func (s *Server) logClose(ctx context.Context, remote string, err error) {
	var netErr net.Error
	switch {
	case ctx.Err() != nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		s.logger.Debug("device disconnected", "remote", remote)
	case errors.Is(err, frame.ErrFrameDesync):
		s.logger.Warn("stream desynchronised, closing connection",
			"remote", remote,
			"stage", "read",
			"error", err,
		)
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Info("device idle, closing connection", "remote", remote, "timeout", s.cfg.ReadTimeout)
	default:
		s.logger.Warn("connection read failed", "remote", remote, "stage", "read", "error", err)
	}
}
