package protocol

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	sderrors "github.com/conneroisu/searchd/internal/errors"
	"github.com/conneroisu/searchd/internal/logging"
	"github.com/conneroisu/searchd/internal/monitoring"
)

// Searcher is the lookup capability a session dispatches to. The corpus
// controller satisfies it.
type Searcher interface {
	Lookup(candidate string) (bool, error)
}

// State is the position of a session in its protocol state machine.
type State int

const (
	StateAwaitingRequest State = iota
	StateValidating
	StateSearching
	StateResponding
	StateClosed
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateAwaitingRequest:
		return "awaiting_request"
	case StateValidating:
		return "validating"
	case StateSearching:
		return "searching"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Session.
type Options struct {
	Searcher    Searcher
	Reporter    monitoring.Reporter
	Logger      logging.Logger
	IdleTimeout time.Duration
	MaxPayload  int
}

// Session is the per-connection protocol state machine. It owns its
// transport exclusively: no other goroutine touches the connection, so no
// locking is needed. The reader must wrap the same connection; any bytes
// it has already buffered (for example after the PSK gate) belong to this
// session.
type Session struct {
	id       string
	conn     net.Conn
	reader   *bufio.Reader
	remote   string
	searcher Searcher
	reporter monitoring.Reporter
	logger   logging.Logger

	idleTimeout time.Duration
	maxPayload  int
	state       State
	openedAt    time.Time
}

// NewSession creates a session over an established, authenticated
// transport.
func NewSession(conn net.Conn, reader *bufio.Reader, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = monitoring.NopReporter{}
	}
	if reader == nil {
		reader = bufio.NewReader(conn)
	}

	id := uuid.NewString()

	return &Session{
		id:       id,
		conn:     conn,
		reader:   reader,
		remote:   conn.RemoteAddr().String(),
		searcher: opts.Searcher,
		reporter: reporter,
		logger:   logger.WithComponent("session").With("session", id),

		idleTimeout: opts.IdleTimeout,
		maxPayload:  opts.MaxPayload,
		state:       StateAwaitingRequest,
		openedAt:    time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// Run drives the request/response loop until the client closes the
// connection, the idle timeout elapses, or a transport error occurs. Every
// fault is isolated to this session; Run never panics the process over a
// bad peer.
func (s *Session) Run(ctx context.Context) {
	s.reporter.ConnectionOpened(s.id, s.remote)
	s.logger.Debug(ctx, "session started", "remote", s.remote)

	defer func() {
		s.state = StateClosed
		s.conn.Close()
		s.reporter.ConnectionClosed(s.id, s.remote, time.Since(s.openedAt))
		s.logger.Debug(ctx, "session closed", "remote", s.remote)
	}()

	for ctx.Err() == nil {
		s.state = StateAwaitingRequest
		if s.idleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		payload, err := ReadFrame(s.reader, s.maxPayload)
		if err != nil {
			s.logReadFailure(ctx, err)
			return
		}

		if !s.handleRequest(ctx, payload) {
			return
		}
	}
}

// handleRequest answers a single frame. It returns false when the
// connection must close.
func (s *Session) handleRequest(ctx context.Context, payload []byte) bool {
	start := time.Now()

	s.state = StateValidating
	candidate, err := Sanitize(payload)
	if err != nil {
		// Malformed payload: answer with ERROR, keep the connection open.
		s.reporter.QueryFailed(s.id, s.remote, err)
		return s.writeResponse(ctx, ErrorResponse(err))
	}

	if candidate == "" {
		s.reporter.QueryProcessed(s.id, s.remote, candidate, false, time.Since(start))
		return s.writeResponse(ctx, RespNotFound)
	}

	s.state = StateSearching
	found, err := s.searcher.Lookup(candidate)
	if err != nil {
		if sderrors.IsRecoverable(err) {
			s.reporter.QueryFailed(s.id, s.remote, err)
			return s.writeResponse(ctx, ErrorResponse(err))
		}

		s.logger.Error(ctx, err, "lookup failed unrecoverably", "remote", s.remote)
		return false
	}

	s.state = StateResponding
	response := RespNotFound
	if found {
		response = RespExists
	}
	if !s.writeResponse(ctx, response) {
		return false
	}

	s.reporter.QueryProcessed(s.id, s.remote, candidate, found, time.Since(start))

	return true
}

// writeResponse writes one newline-terminated response line. A write
// failure closes the session.
func (s *Session) writeResponse(ctx context.Context, response string) bool {
	if s.idleTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.idleTimeout))
	}

	if _, err := s.conn.Write([]byte(response + "\n")); err != nil {
		s.logger.Warn(ctx, err, "response write failed", "remote", s.remote)
		return false
	}

	return true
}

func (s *Session) logReadFailure(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Debug(ctx, "client disconnected", "remote", s.remote)
	case isTimeout(err):
		s.logger.Info(ctx, "session idle timeout", "remote", s.remote)
	default:
		s.logger.Warn(ctx, err, "request read failed", "remote", s.remote)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
