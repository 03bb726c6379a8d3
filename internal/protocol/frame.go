// Package protocol implements the wire protocol: newline-terminated
// requests of at most MaxPayload bytes, answered by exactly one of the
// three response lines. The per-connection state machine lives in
// Session.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"unicode/utf8"

	sderrors "github.com/conneroisu/searchd/internal/errors"
)

// Response lines. Every response is written with a trailing newline.
const (
	RespExists   = "STRING EXISTS"
	RespNotFound = "STRING NOT FOUND"
	errPrefix    = "ERROR: "
)

// ReadFrame reads one request frame: bytes up to a line terminator, or max
// bytes if no terminator arrives first. The returned payload excludes the
// terminator.
//
// An over-limit request is deliberately truncated and answered rather than
// rejected; the overflow bytes are interpreted as the start of the next
// request, which matches a fixed-size-recv peer. A partial frame followed
// by EOF counts as a complete request so clients may omit the final
// newline before half-closing.
func ReadFrame(r *bufio.Reader, max int) ([]byte, error) {
	payload := make([]byte, 0, 64)

	for len(payload) < max {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(payload) > 0 {
				return payload, nil
			}
			return nil, err
		}
		if b == '\n' {
			return payload, nil
		}
		payload = append(payload, b)
	}

	// The frame filled to the cap. A request of exactly max bytes carries
	// its terminator right behind it; consume that terminator so it is not
	// parsed as an empty follow-up frame. Only already-buffered bytes are
	// inspected: the ceiling case must not block waiting for more input.
	if r.Buffered() > 0 {
		if next, err := r.Peek(1); err == nil && next[0] == '\n' {
			_, _ = r.Discard(1)
		}
	}

	return payload, nil
}

// Sanitize normalizes a raw payload into a candidate string: every null
// byte is stripped (leading, trailing, and embedded), a carriage return
// belonging to a CRLF terminator is removed, and the result must decode as
// UTF-8. Interior whitespace is preserved untouched.
func Sanitize(payload []byte) (string, error) {
	cleaned := bytes.ReplaceAll(payload, []byte{0}, nil)
	cleaned = bytes.TrimSuffix(cleaned, []byte{'\r'})

	if !utf8.Valid(cleaned) {
		return "", sderrors.ErrUndecodablePayload()
	}

	return string(cleaned), nil
}

// ErrorResponse renders an error as an "ERROR: <reason>" line. Structured
// errors contribute their client-safe reason; anything else collapses to a
// generic message so internals never reach the wire.
func ErrorResponse(err error) string {
	var se *sderrors.SearchdError
	if errors.As(err, &se) {
		return errPrefix + se.Reason()
	}

	return errPrefix + "internal error"
}
