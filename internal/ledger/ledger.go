// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger implements the per-stage progress file: an append-only
// list of processed item identifiers, one per line. An identifier is
// appended only after its item is fully handled, so a crash never records
// an item whose output is missing.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the name of the ledger file inside a stage directory.
const FileName = "progress"

// Ledger is an open progress file. It is owned by a single stage run and is
// not safe for concurrent use.
type Ledger struct {
	path  string
	f     *os.File
	seen  map[string]struct{}
	order []string
}

// Open loads the ledger at path, creating it and its parent directory when
// absent. A final line without a trailing newline is a torn write from an
// interrupted run: it is ignored and the file is truncated back to the last
// complete line.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	l := &Ledger{path: path, seen: make(map[string]struct{})}
	valid, err := load(path, l.add)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	if err := f.Truncate(valid); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating ledger %s: %w", path, err)
	}
	if _, err := f.Seek(valid, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking ledger %s: %w", path, err)
	}

	l.f = f
	return l, nil
}

// load passes each complete line to add and returns the byte length of the
// valid prefix.
func load(path string, add func(id string)) (int64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	end := strings.LastIndexByte(string(data), '\n') + 1
	sc := bufio.NewScanner(strings.NewReader(string(data[:end])))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if id := sc.Text(); id != "" {
			add(id)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scanning ledger %s: %w", path, err)
	}
	return int64(end), nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Has reports whether id was recorded by this or an earlier run.
func (l *Ledger) Has(id string) bool {
	_, ok := l.seen[Sanitize(id)]
	return ok
}

// Mark appends id and syncs the file before returning. Marking an id that is
// already present is a no-op.
func (l *Ledger) Mark(id string) error {
	id = Sanitize(id)
	if id == "" {
		return errors.New("ledger: empty id")
	}
	if _, ok := l.seen[id]; ok {
		return nil
	}
	if _, err := l.f.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("appending to ledger %s: %w", l.path, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing ledger %s: %w", l.path, err)
	}
	l.add(id)
	return nil
}

func (l *Ledger) add(id string) {
	if _, ok := l.seen[id]; ok {
		return
	}
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
}

// Last returns the most recently recorded id starting with prefix.
func (l *Ledger) Last(prefix string) (string, bool) {
	for i := len(l.order) - 1; i >= 0; i-- {
		if strings.HasPrefix(l.order[i], prefix) {
			return l.order[i], true
		}
	}
	return "", false
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int { return len(l.seen) }

// Close closes the underlying file.
func (l *Ledger) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Sanitize makes id safe for the line-oriented format by replacing line
// breaks with spaces and trimming surrounding whitespace.
func Sanitize(id string) string {
	id = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(id)
	return strings.TrimSpace(id)
}
