package corpus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherSwapsSnapshotOnChange(t *testing.T) {
	path := writeCorpusFile(t, "foo\n")

	ctrl, err := NewController(corpusConfig(path, false), nil, nil)
	require.NoError(t, err)

	watcher, err := NewWatcher(ctrl, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	watcher.Start(ctx)

	// Let the watch loop come up before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("foo\nqux\n"), 0644))

	assert.Eventually(t, func() bool {
		found, err := ctrl.Lookup("qux")
		return err == nil && found
	}, 3*time.Second, 25*time.Millisecond, "snapshot was not replaced after file change")
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	path := writeCorpusFile(t, "foo\n")

	ctrl, err := NewController(corpusConfig(path, false), nil, nil)
	require.NoError(t, err)

	before := ctrl.Snapshot()

	watcher, err := NewWatcher(ctrl, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	watcher.Start(ctx)

	time.Sleep(100 * time.Millisecond)

	sibling := path + ".other"
	require.NoError(t, os.WriteFile(sibling, []byte("noise\n"), 0644))

	time.Sleep(200 * time.Millisecond)

	assert.Same(t, before, ctrl.Snapshot(), "sibling file writes must not trigger a reload")
}

func TestWatcherStopIsIdempotentWithPendingTimer(t *testing.T) {
	path := writeCorpusFile(t, "foo\n")

	ctrl, err := NewController(corpusConfig(path, false), nil, nil)
	require.NoError(t, err)

	watcher, err := NewWatcher(ctrl, time.Hour, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("bar\n"), 0644))
	time.Sleep(50 * time.Millisecond)

	// Stop with the debounce timer armed; the reload must never fire.
	require.NoError(t, watcher.Stop())

	found, err := ctrl.Lookup("foo")
	require.NoError(t, err)
	assert.True(t, found)
}
