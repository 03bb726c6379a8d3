// Package testutils provides shared fixtures for searchd tests: temporary
// corpus files, ready-made configurations, and throwaway TLS material.
package testutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/searchd/internal/config"
)

// WriteCorpus writes lines to a temporary corpus file and returns its path.
func WriteCorpus(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "corpus.txt")
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}

// AppendCorpus appends a line to an existing corpus file.
func AppendCorpus(t *testing.T, path, line string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}

// TestConfig returns a configuration suitable for in-process server tests:
// loopback host, system-assigned port, short timeouts.
func TestConfig(corpusPath string) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.IdleTimeout = 2 * time.Second
	cfg.Corpus.Path = corpusPath

	return cfg
}

// TLSMaterial holds paths to generated certificate files.
type TLSMaterial struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// WriteSelfSignedCert generates a self-signed certificate valid for
// 127.0.0.1 and localhost and writes it to a temp directory. The
// certificate doubles as its own CA.
func WriteSelfSignedCert(t *testing.T) TLSMaterial {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "searchd-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	material := TLSMaterial{
		CertFile: filepath.Join(dir, "server.crt"),
		KeyFile:  filepath.Join(dir, "server.key"),
		CAFile:   filepath.Join(dir, "ca.crt"),
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	require.NoError(t, os.WriteFile(material.CertFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(material.KeyFile, keyPEM, 0600))
	require.NoError(t, os.WriteFile(material.CAFile, certPEM, 0644))

	return material
}
