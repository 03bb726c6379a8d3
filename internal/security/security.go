// Package security establishes the transport for an accepted connection:
// an ordered chain of pass/fail gates (TLS handshake, then pre-shared-key
// check) runs to completion before any query is processed. A gate failure
// closes the connection; no search logic executes on an unadmitted
// transport.
package security

import (
	"bufio"
	"net"
	"time"

	"github.com/conneroisu/searchd/internal/config"
)

// Transport is an admitted, ready-to-use connection. Reader wraps Conn and
// may hold bytes buffered during gating; the session must keep reading
// through it.
type Transport struct {
	Conn   net.Conn
	Reader *bufio.Reader
}

// Gate is one pass/fail admission step. Gates may replace the transport
// (the TLS gate swaps in the wrapped connection) or consume gating bytes
// from its reader (the PSK gate).
type Gate interface {
	Name() string
	Admit(t *Transport) (*Transport, error)
}

// Chain runs gates in order. An empty chain admits plaintext connections
// untouched.
type Chain struct {
	gates            []Gate
	handshakeTimeout time.Duration
}

// NewChain builds the gate chain for the given configuration: a TLS gate
// when TLS is enabled, then a PSK gate when a key is configured. Toggling
// either is purely a configuration decision.
func NewChain(tlsCfg config.TLSConfig, authCfg config.AuthConfig, handshakeTimeout time.Duration) (*Chain, error) {
	chain := &Chain{handshakeTimeout: handshakeTimeout}

	if tlsCfg.Enabled {
		gate, err := NewTLSGate(tlsCfg)
		if err != nil {
			return nil, err
		}
		chain.gates = append(chain.gates, gate)
	}

	if authCfg.PSK != "" {
		chain.gates = append(chain.gates, NewPSKGate(authCfg.PSK))
	}

	return chain, nil
}

// Len returns the number of configured gates.
func (c *Chain) Len() int {
	return len(c.gates)
}

// Establish runs every gate against the raw connection and returns the
// admitted transport. On failure the caller owns closing the connection;
// nothing has been written to the peer.
func (c *Chain) Establish(conn net.Conn) (*Transport, error) {
	if c.handshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.handshakeTimeout))
	}

	t := &Transport{Conn: conn, Reader: bufio.NewReader(conn)}

	for _, gate := range c.gates {
		admitted, err := gate.Admit(t)
		if err != nil {
			return nil, err
		}
		t = admitted
	}

	// Gating deadlines do not carry into the session; it sets its own.
	_ = t.Conn.SetDeadline(time.Time{})

	return t, nil
}
