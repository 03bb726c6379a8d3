package corpus

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/searchd/internal/config"
)

var allStrategyNames = []string{
	config.StrategyHashSet,
	config.StrategyScan,
	config.StrategyMmap,
	config.StrategyBinary,
}

func TestForName(t *testing.T) {
	for _, name := range allStrategyNames {
		strategy, err := ForName(name)
		require.NoError(t, err)
		assert.Equal(t, name, strategy.Name())
	}

	_, err := ForName("bogus")
	assert.Error(t, err)
}

func TestStrategiesAgree(t *testing.T) {
	content := "foo\nbar\nhello world\nbar\n\nlast"
	path := writeCorpusFile(t, content)

	candidates := []struct {
		candidate string
		want      bool
	}{
		{"foo", true},
		{"bar", true},
		{"hello world", true},
		{"last", true}, // final line without terminator
		{"hello", false},
		{"world", false},
		{"ello world", false},
		{"qux", false},
		{"FOO", false},
		{"", true}, // explicitly empty line in corpus
	}

	for _, name := range allStrategyNames {
		t.Run(name, func(t *testing.T) {
			strategy, err := ForName(name)
			require.NoError(t, err)

			for _, tc := range candidates {
				got, err := strategy.Match(path, tc.candidate)
				require.NoError(t, err)
				assert.Equal(t, tc.want, got,
					"strategy %s disagreed on %q", name, tc.candidate)
			}
		})
	}
}

func TestStrategiesEmptyCorpus(t *testing.T) {
	path := writeCorpusFile(t, "")

	for _, name := range allStrategyNames {
		strategy, err := ForName(name)
		require.NoError(t, err)

		found, err := strategy.Match(path, "anything")
		require.NoError(t, err, "strategy %s on empty corpus", name)
		assert.False(t, found)
	}
}

func TestStrategiesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")

	for _, name := range allStrategyNames {
		strategy, err := ForName(name)
		require.NoError(t, err)

		_, err = strategy.Match(path, "anything")
		assert.Error(t, err, "strategy %s must surface the read failure", name)
	}
}

func TestMmapNoSubstringMatch(t *testing.T) {
	// The corpus content contains the candidate bytes mid-line; a substring
	// scan would find them, full-line matching must not.
	path := writeCorpusFile(t, "prefix needle suffix\nneedle more\n")

	strategy, err := ForName(config.StrategyMmap)
	require.NoError(t, err)

	found, err := strategy.Match(path, "needle")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = strategy.Match(path, "needle more")
	require.NoError(t, err)
	assert.True(t, found)
}
