package security

import (
	"crypto/subtle"
	"errors"
	"io"

	sderrors "github.com/conneroisu/searchd/internal/errors"
	"github.com/conneroisu/searchd/internal/protocol"
)

// pskFrameLimit bounds the key line a client may send. Keys are short; a
// peer streaming garbage is cut off here.
const pskFrameLimit = 256

// PSKGate requires the first line on the connection to be the configured
// pre-shared key. The comparison is constant-time; mismatch or absence
// closes the connection before any query is processed.
type PSKGate struct {
	key []byte
}

// NewPSKGate creates a gate for the configured key.
func NewPSKGate(key string) *PSKGate {
	return &PSKGate{key: []byte(key)}
}

// Name returns the gate name.
func (g *PSKGate) Name() string { return "psk" }

// Admit reads and verifies the key line.
func (g *PSKGate) Admit(t *Transport) (*Transport, error) {
	payload, err := protocol.ReadFrame(t.Reader, pskFrameLimit)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, sderrors.ErrPSKMissing()
		}
		return nil, sderrors.NewTransportError(sderrors.ErrCodeConnectionClosed,
			"connection lost during authentication", err)
	}

	supplied, err := protocol.Sanitize(payload)
	if err != nil || len(supplied) == 0 {
		return nil, sderrors.ErrPSKMissing()
	}

	if subtle.ConstantTimeCompare([]byte(supplied), g.key) != 1 {
		return nil, sderrors.ErrPSKMismatch()
	}

	return t, nil
}
