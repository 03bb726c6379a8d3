package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/searchd/internal/config"
)

func TestCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "query", "config", "version"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup. Equivalent to t.Chdir, which
// requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestConfigInitWritesStarterFile(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, runConfigInit(configInitCmd, nil))

	raw, err := os.ReadFile(".searchd.yml")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	assert.Equal(t, 44445, cfg.Server.Port)
	assert.Equal(t, "/data/texts/source.txt", cfg.Corpus.Path)
	assert.Equal(t, config.AcceptPolicyWait, cfg.Server.AcceptPolicy)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, os.WriteFile(".searchd.yml", []byte("server:\n  port: 1\n"), 0644))

	configInitForce = false
	err := runConfigInit(configInitCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// --force replaces it.
	configInitForce = true
	t.Cleanup(func() { configInitForce = false })
	require.NoError(t, runConfigInit(configInitCmd, nil))

	raw, err := os.ReadFile(".searchd.yml")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	assert.Equal(t, 44445, cfg.Server.Port)
}
