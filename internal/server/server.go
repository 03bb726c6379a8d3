// Package server binds the listener, security chain, and corpus controller
// together: accept a connection, run the admission gates, then hand the
// transport to a dedicated session goroutine. The accept loop is the only
// shared mutable point; sessions never touch each other.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/conneroisu/searchd/internal/config"
	"github.com/conneroisu/searchd/internal/corpus"
	sderrors "github.com/conneroisu/searchd/internal/errors"
	"github.com/conneroisu/searchd/internal/logging"
	"github.com/conneroisu/searchd/internal/monitoring"
	"github.com/conneroisu/searchd/internal/protocol"
	"github.com/conneroisu/searchd/internal/security"
)

// Server is the searchd TCP server.
type Server struct {
	cfg        *config.Config
	controller *corpus.Controller
	chain      *security.Chain
	watcher    *corpus.Watcher
	reporter   monitoring.Reporter
	logger     logging.Logger

	// admission slots for the reject policy; nil under the wait policy
	slots chan struct{}

	mutex        sync.RWMutex
	listener     net.Listener
	sessions     map[net.Conn]struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	isShutdown   bool
}

// New creates a server from a validated configuration. The corpus is
// loaded (cached mode) or probed (reload mode) here; an inaccessible
// corpus or missing TLS material aborts startup.
func New(cfg *config.Config, logger logging.Logger, reporter monitoring.Reporter) (*Server, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if reporter == nil {
		reporter = monitoring.NopReporter{}
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	controller, err := corpus.NewController(cfg.Corpus, logger, reporter)
	if err != nil {
		return nil, err
	}

	chain, err := security.NewChain(cfg.TLS, cfg.Auth, cfg.Server.IdleTimeout)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		controller: controller,
		chain:      chain,
		reporter:   reporter,
		logger:     logger.WithComponent("server"),
		sessions:   make(map[net.Conn]struct{}),
	}

	if cfg.Server.AcceptPolicy == config.AcceptPolicyReject {
		s.slots = make(chan struct{}, cfg.Server.MaxConnections)
	}

	if cfg.Corpus.Watch && !cfg.Corpus.RereadOnQuery {
		watcher, err := corpus.NewWatcher(controller, cfg.Corpus.WatchDebounce, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create corpus watcher: %w", err)
		}
		s.watcher = watcher
	}

	return s, nil
}

// Controller exposes the corpus controller, mainly for tests and the
// health surface.
func (s *Server) Controller() *corpus.Controller {
	return s.controller
}

// Start listens and serves until the context is cancelled or Shutdown is
// called. Blocking.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Server.AcceptPolicy == config.AcceptPolicyWait {
		// Connections beyond the ceiling queue in the kernel backlog until
		// a slot frees up.
		listener = netutil.LimitListener(listener, s.cfg.Server.MaxConnections)
	}

	s.mutex.Lock()
	if s.isShutdown {
		s.mutex.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mutex.Unlock()

	if s.watcher != nil {
		s.watcher.Start(ctx)
	}

	s.logger.Info(ctx, "server started",
		"addr", listener.Addr().String(),
		"tls", s.cfg.TLS.Enabled,
		"psk", logging.RedactSecret(s.cfg.Auth.PSK),
		"reread_on_query", s.cfg.Corpus.RereadOnQuery,
		"max_connections", s.cfg.Server.MaxConnections,
		"accept_policy", s.cfg.Server.AcceptPolicy,
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.shuttingDown() {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if s.slots != nil {
			select {
			case s.slots <- struct{}{}:
			default:
				s.rejectConn(ctx, conn)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Addr returns the bound listener address, or nil before Start has bound
// it. Tests use this to discover a system-assigned port.
func (s *Server) Addr() net.Addr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// rejectConn turns away a connection beyond the ceiling under the reject
// policy. The peer gets a protocol-level error line so it can tell
// rejection from a network fault.
func (s *Server) rejectConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Warn(ctx, nil, "connection rejected: ceiling reached",
		"remote", remote,
		"max_connections", s.cfg.Server.MaxConnections,
	)

	// Under TLS no handshake has run yet, so a plaintext line would reach
	// the peer as garbage mid-handshake; those clients only get the close.
	if !s.cfg.TLS.Enabled {
		rejection := sderrors.NewTransportError("ERR_SERVER_BUSY", "too many connections", nil)
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = conn.Write([]byte(protocol.ErrorResponse(rejection) + "\n"))
	}
	conn.Close()
}

// handleConn gates a single accepted connection and runs its session.
// Every failure here is isolated to this connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.releaseSlot()

	remote := conn.RemoteAddr().String()

	transport, err := s.chain.Establish(conn)
	if err != nil {
		s.reporter.SecurityFailure(remote, err)
		s.logger.Warn(ctx, err, "connection not admitted", "remote", remote)
		conn.Close()
		return
	}

	s.trackSession(transport.Conn)
	defer s.untrackSession(transport.Conn)

	session := protocol.NewSession(transport.Conn, transport.Reader, protocol.Options{
		Searcher:    s.controller,
		Reporter:    s.reporter,
		Logger:      s.logger,
		IdleTimeout: s.cfg.Server.IdleTimeout,
		MaxPayload:  s.cfg.Server.MaxPayload,
	})

	session.Run(ctx)
}

func (s *Server) releaseSlot() {
	if s.slots != nil {
		<-s.slots
	}
}

func (s *Server) trackSession(conn net.Conn) {
	s.mutex.Lock()
	s.sessions[conn] = struct{}{}
	s.mutex.Unlock()
}

func (s *Server) untrackSession(conn net.Conn) {
	s.mutex.Lock()
	delete(s.sessions, conn)
	s.mutex.Unlock()
}

func (s *Server) shuttingDown() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isShutdown
}

// Shutdown stops accepting, then drains active sessions. When the context
// expires first, remaining sessions are force-closed.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down")

		s.mutex.Lock()
		s.isShutdown = true
		listener := s.listener
		s.mutex.Unlock()

		if listener != nil {
			shutdownErr = listener.Close()
		}

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			s.mutex.Lock()
			for conn := range s.sessions {
				conn.Close()
			}
			s.mutex.Unlock()
			<-done
		}

		s.logger.Info(ctx, "shutdown complete")
	})

	return shutdownErr
}
