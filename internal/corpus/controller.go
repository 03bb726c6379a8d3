package corpus

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/conneroisu/searchd/internal/config"
	"github.com/conneroisu/searchd/internal/errors"
	"github.com/conneroisu/searchd/internal/logging"
	"github.com/conneroisu/searchd/internal/monitoring"
)

// Controller owns the snapshot lifecycle and exposes the single Lookup
// entry point sessions dispatch to.
//
// Cached mode builds one snapshot at construction time; lookups are
// lock-free reads against the immutable set. Reload mode evaluates every
// lookup against the file as it is on disk at that moment, so edits are
// visible on the very next query.
type Controller struct {
	path     string
	reread   bool
	strategy Strategy
	snapshot atomic.Pointer[Snapshot]
	logger   logging.Logger
	reporter monitoring.Reporter
}

// NewController builds a controller for the configured corpus. It fails if
// the corpus file is inaccessible; the server treats that as a startup
// abort.
func NewController(cfg config.CorpusConfig, logger logging.Logger, reporter monitoring.Reporter) (*Controller, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if reporter == nil {
		reporter = monitoring.NopReporter{}
	}

	strategy, err := ForName(cfg.Strategy)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}

	c := &Controller{
		path:     cfg.Path,
		reread:   cfg.RereadOnQuery,
		strategy: strategy,
		logger:   logger.WithComponent("corpus"),
		reporter: reporter,
	}

	if cfg.RereadOnQuery {
		// No long-lived snapshot, but the file must be readable now.
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, errors.ErrCorpusMissing(cfg.Path, err)
		}
		f.Close()

		c.logger.Info(context.Background(), "corpus in reload mode",
			"path", cfg.Path,
			"strategy", strategy.Name(),
		)

		return c, nil
	}

	snap, err := BuildSnapshot(cfg.Path)
	if err != nil {
		return nil, errors.ErrCorpusMissing(cfg.Path, err)
	}
	c.snapshot.Store(snap)

	c.logger.Info(context.Background(), "corpus snapshot built",
		"path", cfg.Path,
		"lines", snap.Len(),
		"fingerprint", snap.Fingerprint(),
	)

	return c, nil
}

// Lookup reports whether the candidate exactly matches a corpus line. In
// reload mode the file is re-evaluated fresh; read failures surface as a
// corpus-unavailable error rather than crashing the process.
func (c *Controller) Lookup(candidate string) (bool, error) {
	if c.reread {
		found, err := c.strategy.Match(c.path, candidate)
		if err != nil {
			return false, errors.NewCorpusUnavailable("corpus file could not be read", err)
		}
		return found, nil
	}

	return c.snapshot.Load().Contains(candidate), nil
}

// Reload rebuilds the snapshot and publishes it with an atomic handle swap.
// Only meaningful in cached mode; the corpus watcher calls it on file
// change.
func (c *Controller) Reload() error {
	if c.reread {
		return nil
	}

	snap, err := BuildSnapshot(c.path)
	if err != nil {
		return errors.NewCorpusUnavailable("corpus file could not be read", err)
	}

	old := c.snapshot.Swap(snap)
	if old != nil && old.Fingerprint() == snap.Fingerprint() {
		return nil
	}

	c.reporter.CorpusReloaded(c.path, snap.Len(), snap.Fingerprint())

	return nil
}

// Snapshot returns the current published snapshot, or nil in reload mode.
func (c *Controller) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Path returns the corpus file path.
func (c *Controller) Path() string {
	return c.path
}

// RereadOnQuery reports whether the controller runs in reload mode.
func (c *Controller) RereadOnQuery() bool {
	return c.reread
}
