package corpus

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/conneroisu/searchd/internal/config"
)

// Strategy evaluates exact full-line membership against the current file
// content. Strategies are interchangeable performance tactics: for any file
// state and candidate, every strategy returns the same boolean.
type Strategy interface {
	Name() string
	Match(path, candidate string) (bool, error)
}

// ForName returns the strategy registered under the given configuration
// name.
func ForName(name string) (Strategy, error) {
	switch name {
	case config.StrategyHashSet:
		return hashSetStrategy{}, nil
	case config.StrategyScan:
		return scanStrategy{}, nil
	case config.StrategyMmap:
		return mmapStrategy{}, nil
	case config.StrategyBinary:
		return binaryStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", name)
	}
}

// hashSetStrategy rebuilds a full snapshot per call and tests membership
// against it. Slowest reload option for one-shot queries but shares its
// code path with cached mode.
type hashSetStrategy struct{}

func (hashSetStrategy) Name() string { return config.StrategyHashSet }

func (hashSetStrategy) Match(path, candidate string) (bool, error) {
	snap, err := BuildSnapshot(path)
	if err != nil {
		return false, err
	}
	return snap.Contains(candidate), nil
}

// scanStrategy streams the file line by line and stops at the first match.
type scanStrategy struct{}

func (scanStrategy) Name() string { return config.StrategyScan }

func (scanStrategy) Match(path, candidate string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	want := []byte(candidate)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBuffer)
	for scanner.Scan() {
		if bytes.Equal(trimLineTerminator(scanner.Bytes()), want) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}

	return false, nil
}

// mmapStrategy maps the file read-only and walks newline boundaries
// without copying line data. This is the default for reload mode; it keeps
// repeated full re-reads of ~1M-line corpora inside the latency budget.
type mmapStrategy struct{}

func (mmapStrategy) Name() string { return config.StrategyMmap }

func (mmapStrategy) Match(path, candidate string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}

	size := info.Size()
	if size == 0 {
		return false, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// Pipes and some filesystems refuse mmap; the scan path gives the
		// same answer.
		return scanStrategy{}.Match(path, candidate)
	}
	defer unix.Munmap(data)

	want := []byte(candidate)
	rest := data
	for len(rest) > 0 {
		var line []byte
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i], rest[i+1:]
		} else {
			line, rest = rest, nil
		}
		if bytes.Equal(trimLineTerminator(line), want) {
			return true, nil
		}
	}

	return false, nil
}

// binaryStrategy loads and sorts the lines, then binary-searches. The sort
// dominates a single query; the strategy exists for corpora served from a
// pre-sorted file picture where the load is cheap relative to many probes.
type binaryStrategy struct{}

func (binaryStrategy) Name() string { return config.StrategyBinary }

func (binaryStrategy) Match(path, candidate string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBuffer)
	for scanner.Scan() {
		lines = append(lines, string(trimLineTerminator(scanner.Bytes())))
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}

	sort.Strings(lines)
	i := sort.SearchStrings(lines, candidate)

	return i < len(lines) && lines[i] == candidate, nil
}
