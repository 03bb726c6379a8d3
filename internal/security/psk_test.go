package security

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/conneroisu/searchd/internal/errors"
)

// admitPSK runs the gate against a pipe while the client writes input, and
// returns the gate result and the admitted transport.
func admitPSK(t *testing.T, key, clientInput string, closeAfterWrite bool) (*Transport, error) {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		serverSide.Close()
		clientSide.Close()
	})

	go func() {
		if clientInput != "" {
			_, _ = clientSide.Write([]byte(clientInput))
		}
		if closeAfterWrite {
			clientSide.Close()
		}
	}()

	_ = serverSide.SetDeadline(time.Now().Add(2 * time.Second))

	gate := NewPSKGate(key)
	transport := &Transport{Conn: serverSide, Reader: bufio.NewReader(serverSide)}

	return gate.Admit(transport)
}

func TestPSKGateCorrectKey(t *testing.T) {
	transport, err := admitPSK(t, "sesame", "sesame\n", false)
	require.NoError(t, err)
	require.NotNil(t, transport)
}

func TestPSKGateWrongKey(t *testing.T) {
	_, err := admitPSK(t, "sesame", "open-up\n", false)
	require.Error(t, err)
	assert.True(t, sderrors.IsAuthError(err))

	var se *sderrors.SearchdError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sderrors.ErrCodePSKMismatch, se.Code)
}

func TestPSKGateEmptyKeyLine(t *testing.T) {
	_, err := admitPSK(t, "sesame", "\n", false)
	require.Error(t, err)

	var se *sderrors.SearchdError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sderrors.ErrCodePSKMissing, se.Code)
}

func TestPSKGateDisconnectBeforeKey(t *testing.T) {
	_, err := admitPSK(t, "sesame", "", true)
	require.Error(t, err)

	var se *sderrors.SearchdError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sderrors.ErrCodePSKMissing, se.Code)
}

func TestPSKGateKeyIsNotPrefixMatched(t *testing.T) {
	_, err := admitPSK(t, "sesame", "sesame-and-then-some\n", false)
	require.Error(t, err)
	assert.True(t, sderrors.IsAuthError(err))
}

// A client may batch the key line and the first query in a single write;
// the query bytes buffered during gating must survive into the admitted
// transport.
func TestPSKGatePreservesBufferedBytes(t *testing.T) {
	transport, err := admitPSK(t, "sesame", "sesame\nfirst query\n", false)
	require.NoError(t, err)

	line, err := transport.Reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "first query\n", line)
}

func TestPSKGateOversizedKeyRejected(t *testing.T) {
	_, err := admitPSK(t, "sesame", strings.Repeat("x", 300)+"\n", false)
	require.Error(t, err)
	assert.True(t, sderrors.IsAuthError(err))
}

func TestChainWithoutGatesAdmitsPlaintext(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	chain := &Chain{}
	transport, err := chain.Establish(serverSide)
	require.NoError(t, err)
	assert.Same(t, serverSide, transport.Conn)
	assert.Equal(t, 0, chain.Len())
}
