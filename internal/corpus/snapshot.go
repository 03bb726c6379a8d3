// Package corpus implements the dual-mode line corpus: an immutable
// snapshot built once for cached mode, and per-query rebuild strategies for
// reload mode. All strategies implement the same exact-match semantics:
// byte-equal, case-sensitive comparison of full lines with only the
// trailing line terminator stripped.
package corpus

import (
	"bufio"
	"bytes"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

// maxLineBuffer bounds the scanner token size. Corpus lines beyond this are
// a data error, not a supported input.
const maxLineBuffer = 1 << 20

// Snapshot is an immutable, point-in-time materialization of the corpus as
// a membership-testable set of lines. It is never mutated after
// construction; replacement is an atomic handle swap in the Controller.
type Snapshot struct {
	lines       map[string]struct{}
	path        string
	loadedAt    time.Time
	fingerprint uint64
}

// BuildSnapshot reads the corpus file and materializes it as a hash set.
// Each line's trailing terminator is stripped; no other normalization is
// applied. Duplicate lines collapse under set semantics.
func BuildSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	digest := xxhash.New()
	lines := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBuffer)
	for scanner.Scan() {
		line := trimLineTerminator(scanner.Bytes())
		_, _ = digest.Write(line)
		_, _ = digest.Write([]byte{'\n'})
		lines[string(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Snapshot{
		lines:       lines,
		path:        path,
		loadedAt:    time.Now(),
		fingerprint: digest.Sum64(),
	}, nil
}

// Contains reports whether the candidate is present as a full line.
func (s *Snapshot) Contains(candidate string) bool {
	_, ok := s.lines[candidate]
	return ok
}

// Len returns the number of distinct lines.
func (s *Snapshot) Len() int {
	return len(s.lines)
}

// Path returns the source file path.
func (s *Snapshot) Path() string {
	return s.path
}

// LoadedAt returns the load timestamp.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Fingerprint returns an xxhash digest of the normalized corpus content.
// Two snapshots of identical content share a fingerprint regardless of
// load time.
func (s *Snapshot) Fingerprint() uint64 {
	return s.fingerprint
}

// trimLineTerminator strips a trailing carriage return left behind by CRLF
// terminators. bufio.Scanner has already consumed the newline itself.
func trimLineTerminator(line []byte) []byte {
	return bytes.TrimSuffix(line, []byte{'\r'})
}
