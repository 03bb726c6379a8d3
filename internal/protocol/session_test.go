package protocol

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/conneroisu/searchd/internal/errors"
)

// stubSearcher answers from a fixed set, optionally failing every call.
type stubSearcher struct {
	lines map[string]bool
	err   error
}

func (s *stubSearcher) Lookup(candidate string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.lines[candidate], nil
}

// recordingReporter captures reported events for assertions.
type recordingReporter struct {
	mutex     sync.Mutex
	processed []string
	failed    int
	opened    int
	closed    int
}

func (r *recordingReporter) ConnectionOpened(sessionID, remote string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.opened++
}

func (r *recordingReporter) ConnectionClosed(sessionID, remote string, d time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closed++
}

func (r *recordingReporter) QueryProcessed(sessionID, remote, query string, found bool, e time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.processed = append(r.processed, query)
}

func (r *recordingReporter) QueryFailed(sessionID, remote string, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.failed++
}

func (r *recordingReporter) SecurityFailure(remote string, err error)                  {}
func (r *recordingReporter) CorpusReloaded(path string, lines int, fingerprint uint64) {}

func (r *recordingReporter) snapshot() (openend, closed, failed int, processed []string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.opened, r.closed, r.failed, append([]string(nil), r.processed...)
}

// startSession runs a session over a pipe and returns the client side.
func startSession(t *testing.T, searcher Searcher, reporter *recordingReporter) (net.Conn, *sync.WaitGroup) {
	t.Helper()

	serverSide, clientSide := net.Pipe()

	session := NewSession(serverSide, bufio.NewReader(serverSide), Options{
		Searcher:    searcher,
		Reporter:    reporter,
		IdleTimeout: 2 * time.Second,
		MaxPayload:  1024,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.Run(context.Background())
	}()

	return clientSide, &wg
}

func roundTrip(t *testing.T, conn net.Conn, request string) string {
	t.Helper()

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write([]byte(request))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	response, err := reader.ReadString('\n')
	require.NoError(t, err)

	return strings.TrimSuffix(response, "\n")
}

func TestSessionExistingAndMissingLines(t *testing.T) {
	searcher := &stubSearcher{lines: map[string]bool{"foo": true, "hello world": true}}
	reporter := &recordingReporter{}

	client, wg := startSession(t, searcher, reporter)

	assert.Equal(t, RespExists, roundTrip(t, client, "foo\n"))
	assert.Equal(t, RespNotFound, roundTrip(t, client, "qux\n"))
	assert.Equal(t, RespExists, roundTrip(t, client, "hello world\n"))
	assert.Equal(t, RespNotFound, roundTrip(t, client, "hello\n"))

	client.Close()
	wg.Wait()

	opened, closed, failed, processed := reporter.snapshot()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"foo", "qux", "hello world", "hello"}, processed)
}

func TestSessionNullByteStripping(t *testing.T) {
	searcher := &stubSearcher{lines: map[string]bool{"hello": true}}

	client, wg := startSession(t, searcher, &recordingReporter{})
	defer wg.Wait()
	defer client.Close()

	assert.Equal(t, RespExists, roundTrip(t, client, "\x00hello\x00\n"))
}

func TestSessionEmptyCandidate(t *testing.T) {
	searcher := &stubSearcher{err: sderrors.NewInternalError("ERR_INTERNAL", "lookup must not run", nil)}

	client, wg := startSession(t, searcher, &recordingReporter{})
	defer wg.Wait()
	defer client.Close()

	// Empty candidates answer without touching the searcher; a searcher
	// call would fail this test by closing the connection.
	assert.Equal(t, RespNotFound, roundTrip(t, client, "\n"))
	assert.Equal(t, RespNotFound, roundTrip(t, client, "\x00\x00\n"))
}

func TestSessionCorpusUnavailable(t *testing.T) {
	searcher := &stubSearcher{err: sderrors.NewCorpusUnavailable("corpus file could not be read", nil)}
	reporter := &recordingReporter{}

	client, wg := startSession(t, searcher, reporter)

	// The error is answered on the wire and the connection stays usable.
	assert.Equal(t, "ERROR: corpus file could not be read", roundTrip(t, client, "foo\n"))
	assert.Equal(t, "ERROR: corpus file could not be read", roundTrip(t, client, "bar\n"))

	client.Close()
	wg.Wait()

	_, _, failed, _ := reporter.snapshot()
	assert.Equal(t, 2, failed)
}

func TestSessionInvalidUTF8KeepsConnectionOpen(t *testing.T) {
	searcher := &stubSearcher{lines: map[string]bool{"foo": true}}

	client, wg := startSession(t, searcher, &recordingReporter{})
	defer wg.Wait()
	defer client.Close()

	response := roundTrip(t, client, "\xff\xfe\n")
	assert.True(t, strings.HasPrefix(response, "ERROR: "), "got %q", response)

	// Next request on the same connection still works.
	assert.Equal(t, RespExists, roundTrip(t, client, "foo\n"))
}

func TestSessionOversizedPayloadTruncated(t *testing.T) {
	long := strings.Repeat("a", 1024)
	searcher := &stubSearcher{lines: map[string]bool{long: true}}

	client, wg := startSession(t, searcher, &recordingReporter{})
	defer wg.Wait()
	defer client.Close()

	// 1025 bytes without a terminator: the first 1024 bytes are answered
	// as a complete request, deterministically and without hanging.
	_ = client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte(strings.Repeat("a", 1025)))
	require.NoError(t, err)

	reader := bufio.NewReader(client)
	response, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, RespExists, strings.TrimSuffix(response, "\n"))
}

func TestSessionIdleTimeoutCloses(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	session := NewSession(serverSide, bufio.NewReader(serverSide), Options{
		Searcher:    &stubSearcher{},
		IdleTimeout: 50 * time.Millisecond,
		MaxPayload:  1024,
	})

	done := make(chan struct{})
	go func() {
		session.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, StateClosed, session.State())
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after idle timeout")
	}
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "awaiting_request", StateAwaitingRequest.String())
	assert.Equal(t, "validating", StateValidating.String())
	assert.Equal(t, "searching", StateSearching.String())
	assert.Equal(t, "responding", StateResponding.String())
	assert.Equal(t, "closed", StateClosed.String())
}
