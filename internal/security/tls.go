package security

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/conneroisu/searchd/internal/config"
	"github.com/conneroisu/searchd/internal/errors"
)

// TLSGate performs the server-side TLS handshake and replaces the raw
// connection with the encrypted one.
type TLSGate struct {
	config *tls.Config
}

// NewTLSGate loads the configured certificate material. Missing or
// unparsable material is a configuration error; startup aborts.
func NewTLSGate(cfg config.TLSConfig) (*TLSGate, error) {
	tlsConfig, err := ServerTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &TLSGate{config: tlsConfig}, nil
}

// Name returns the gate name.
func (g *TLSGate) Name() string { return "tls" }

// Admit performs the handshake. A plaintext peer fails here and the
// connection is closed without a response.
func (g *TLSGate) Admit(t *Transport) (*Transport, error) {
	tlsConn := tls.Server(t.Conn, g.config)

	if err := tlsConn.Handshake(); err != nil {
		return nil, errors.NewTransportError(errors.ErrCodeHandshakeFailed, "TLS handshake failed", err)
	}

	return &Transport{Conn: tlsConn, Reader: bufio.NewReader(tlsConn)}, nil
}

// ServerTLSConfig builds the server-side TLS configuration: configured
// certificate and key, TLS 1.2 minimum, and CA-validated client
// certificates when a CA file is supplied (mutual TLS stays optional:
// clients without a certificate are still admitted, ones presenting a bad
// certificate are not).
func ServerTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot load TLS certificate pair (%s, %s): %v", cfg.CertFile, cfg.KeyFile, err))
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.CAFile != "" {
		pool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return tlsConfig, nil
}

// ClientTLSConfig builds the client-side configuration used by the query
// command: optional client certificate pair, server verification against
// the CA file when given, otherwise verification is skipped (self-signed
// development servers).
func ClientTLSConfig(certFile, keyFile, caFile, serverName string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("cannot load client certificate pair: %v", err))
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if caFile != "" {
		pool, err := loadCertPool(caFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	} else {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot read CA file %s: %v", caFile, err))
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("CA file %s contains no usable certificates", caFile))
	}

	return pool, nil
}
