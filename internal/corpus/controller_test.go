package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/searchd/internal/config"
	sderrors "github.com/conneroisu/searchd/internal/errors"
)

func corpusConfig(path string, reread bool) config.CorpusConfig {
	return config.CorpusConfig{
		Path:          path,
		RereadOnQuery: reread,
		Strategy:      config.StrategyMmap,
		WatchDebounce: config.Default().Corpus.WatchDebounce,
	}
}

func TestControllerCachedMode(t *testing.T) {
	path := writeCorpusFile(t, "foo\nbar\nbaz\n")

	ctrl, err := NewController(corpusConfig(path, false), nil, nil)
	require.NoError(t, err)

	found, err := ctrl.Lookup("bar")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = ctrl.Lookup("qux")
	require.NoError(t, err)
	assert.False(t, found)

	require.NotNil(t, ctrl.Snapshot())
	assert.Equal(t, 3, ctrl.Snapshot().Len())
	assert.False(t, ctrl.RereadOnQuery())
}

func TestControllerCachedModeIgnoresFileEdits(t *testing.T) {
	path := writeCorpusFile(t, "foo\n")

	ctrl, err := NewController(corpusConfig(path, false), nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("foo\nqux\n"), 0644))

	// Without a reload the published snapshot is untouched.
	found, err := ctrl.Lookup("qux")
	require.NoError(t, err)
	assert.False(t, found)

	// An explicit reload swaps in the new content atomically.
	require.NoError(t, ctrl.Reload())

	found, err = ctrl.Lookup("qux")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestControllerReloadModeSeesEdits(t *testing.T) {
	path := writeCorpusFile(t, "foo\nbar\n")

	ctrl, err := NewController(corpusConfig(path, true), nil, nil)
	require.NoError(t, err)
	assert.True(t, ctrl.RereadOnQuery())
	assert.Nil(t, ctrl.Snapshot())

	found, err := ctrl.Lookup("qux")
	require.NoError(t, err)
	assert.False(t, found)

	// Append between queries; the very next lookup must see it.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("qux\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	found, err = ctrl.Lookup("qux")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestControllerReloadModeCorpusDisappears(t *testing.T) {
	path := writeCorpusFile(t, "foo\n")

	ctrl, err := NewController(corpusConfig(path, true), nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	_, err = ctrl.Lookup("foo")
	require.Error(t, err)
	assert.True(t, sderrors.IsCorpusUnavailable(err))
	assert.True(t, sderrors.IsRecoverable(err), "a vanished corpus must not kill the connection")
}

func TestControllerStartupMissingCorpus(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.txt")

	for _, reread := range []bool{false, true} {
		_, err := NewController(corpusConfig(missing, reread), nil, nil)
		require.Error(t, err)
		assert.True(t, sderrors.IsCorpusUnavailable(err))
		assert.False(t, sderrors.IsRecoverable(err), "startup inaccessibility is fatal")
	}
}

func TestControllerBadStrategy(t *testing.T) {
	path := writeCorpusFile(t, "foo\n")

	cfg := corpusConfig(path, false)
	cfg.Strategy = "quantum"

	_, err := NewController(cfg, nil, nil)
	assert.Error(t, err)
}

func TestControllerReloadFailureKeepsSnapshot(t *testing.T) {
	path := writeCorpusFile(t, "foo\n")

	ctrl, err := NewController(corpusConfig(path, false), nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.Error(t, ctrl.Reload())

	// The previous snapshot stays published.
	found, err := ctrl.Lookup("foo")
	require.NoError(t, err)
	assert.True(t, found)
}
