// Package monitoring defines the event reporter the core emits to, plus
// the concrete sinks: a structured-log reporter and a Prometheus reporter
// with an optional /metrics endpoint. The core only ever sees the Reporter
// interface.
package monitoring

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/conneroisu/searchd/internal/logging"
)

// Reporter receives operational events from the core. Implementations must
// be safe for concurrent use; sessions call them from many goroutines.
type Reporter interface {
	ConnectionOpened(sessionID, remote string)
	ConnectionClosed(sessionID, remote string, duration time.Duration)
	QueryProcessed(sessionID, remote, query string, found bool, elapsed time.Duration)
	QueryFailed(sessionID, remote string, err error)
	SecurityFailure(remote string, err error)
	CorpusReloaded(path string, lines int, fingerprint uint64)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) ConnectionOpened(sessionID, remote string)                        {}
func (NopReporter) ConnectionClosed(sessionID, remote string, d time.Duration)       {}
func (NopReporter) QueryProcessed(id, remote, q string, found bool, e time.Duration) {}
func (NopReporter) QueryFailed(sessionID, remote string, err error)                  {}
func (NopReporter) SecurityFailure(remote string, err error)                         {}
func (NopReporter) CorpusReloaded(path string, lines int, fingerprint uint64)        {}

// LogReporter writes every event to a structured logger. This is the
// default sink and mirrors the per-query timing log line the protocol
// requires.
type LogReporter struct {
	logger logging.Logger

	securityFailures atomic.Int64
}

// NewLogReporter creates a reporter backed by the given logger.
func NewLogReporter(logger logging.Logger) *LogReporter {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &LogReporter{logger: logger.WithComponent("reporter")}
}

func (r *LogReporter) ConnectionOpened(sessionID, remote string) {
	r.logger.Info(context.Background(), "connection established",
		"session", sessionID,
		"remote", remote,
	)
}

func (r *LogReporter) ConnectionClosed(sessionID, remote string, duration time.Duration) {
	r.logger.Info(context.Background(), "connection closed",
		"session", sessionID,
		"remote", remote,
		"duration_ms", duration.Milliseconds(),
	)
}

func (r *LogReporter) QueryProcessed(sessionID, remote, query string, found bool, elapsed time.Duration) {
	r.logger.Info(context.Background(), "query processed",
		"session", sessionID,
		"remote", remote,
		"query", query,
		"found", found,
		"elapsed_us", elapsed.Microseconds(),
	)
}

func (r *LogReporter) QueryFailed(sessionID, remote string, err error) {
	r.logger.Warn(context.Background(), err, "query failed",
		"session", sessionID,
		"remote", remote,
	)
}

func (r *LogReporter) SecurityFailure(remote string, err error) {
	n := r.securityFailures.Add(1)
	r.logger.Warn(context.Background(), err, "security failure",
		"remote", remote,
		"total_failures", n,
	)
}

// SecurityFailures returns the number of security failures observed.
func (r *LogReporter) SecurityFailures() int64 {
	return r.securityFailures.Load()
}

func (r *LogReporter) CorpusReloaded(path string, lines int, fingerprint uint64) {
	r.logger.Info(context.Background(), "corpus snapshot replaced",
		"path", path,
		"lines", lines,
		"fingerprint", fingerprint,
	)
}

// MultiReporter fans every event out to multiple sinks.
type MultiReporter struct {
	reporters []Reporter
}

// NewMultiReporter creates a reporter that forwards to all given sinks.
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) ConnectionOpened(sessionID, remote string) {
	for _, r := range m.reporters {
		r.ConnectionOpened(sessionID, remote)
	}
}

func (m *MultiReporter) ConnectionClosed(sessionID, remote string, duration time.Duration) {
	for _, r := range m.reporters {
		r.ConnectionClosed(sessionID, remote, duration)
	}
}

func (m *MultiReporter) QueryProcessed(sessionID, remote, query string, found bool, elapsed time.Duration) {
	for _, r := range m.reporters {
		r.QueryProcessed(sessionID, remote, query, found, elapsed)
	}
}

func (m *MultiReporter) QueryFailed(sessionID, remote string, err error) {
	for _, r := range m.reporters {
		r.QueryFailed(sessionID, remote, err)
	}
}

func (m *MultiReporter) SecurityFailure(remote string, err error) {
	for _, r := range m.reporters {
		r.SecurityFailure(remote, err)
	}
}

func (m *MultiReporter) CorpusReloaded(path string, lines int, fingerprint uint64) {
	for _, r := range m.reporters {
		r.CorpusReloaded(path, lines, fingerprint)
	}
}
