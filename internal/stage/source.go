// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/litfilter/internal/ledger"
	"github.com/pdiddy/litfilter/internal/search"
	"github.com/pdiddy/litfilter/internal/store"
)

// Batch is a group of candidates. Once every candidate in the batch is
// handled, the stage marks Checkpoint in its ledger when it is non-empty.
type Batch struct {
	Checkpoint string
	Candidates []Candidate
}

// Source yields candidate batches until it returns ok == false. The ledger
// lets a source skip work an earlier run already completed.
type Source interface {
	Next(ctx context.Context, l *ledger.Ledger) (b Batch, ok bool, err error)
}

// CheckpointDone marks a query whose every page has been handled.
const CheckpointDone = "pages:done"

const nextPrefix = "next:"

// NextCheckpoint returns the ledger entry recording that every page before
// offset has been handled.
func NextCheckpoint(offset int) string { return nextPrefix + strconv.Itoa(offset) }

// QuerySource pages through a live search. A rerun resumes at the offset
// after the last fully handled page.
type QuerySource struct {
	Searcher search.Searcher
	Query    string

	offset   int
	resumed  bool
	finished bool
}

// NewQuerySource returns a source paging through query.
func NewQuerySource(s search.Searcher, query string) *QuerySource {
	return &QuerySource{Searcher: s, Query: query}
}

// Next requests the next unhandled page.
func (q *QuerySource) Next(ctx context.Context, l *ledger.Ledger) (Batch, bool, error) {
	if q.finished || l.Has(CheckpointDone) {
		return Batch{}, false, nil
	}
	if !q.resumed {
		q.resumed = true
		if id, ok := l.Last(nextPrefix); ok {
			n, err := strconv.Atoi(strings.TrimPrefix(id, nextPrefix))
			if err != nil {
				return Batch{}, false, fmt.Errorf("bad page checkpoint %q in %s", id, l.Path())
			}
			q.offset = n
			zerolog.Ctx(ctx).Info().Int("start", n).Msg("resuming query")
		}
	}

	page, err := q.Searcher.Page(ctx, q.Query, q.offset)
	if err != nil {
		return Batch{}, false, fmt.Errorf("%s page at %d: %w", q.Searcher.Name(), q.offset, err)
	}
	zerolog.Ctx(ctx).Info().
		Str("source", q.Searcher.Name()).
		Int("start", page.Start).
		Int("entries", page.Entries).
		Int("total", page.Total).
		Msg("fetched page")

	b := Batch{Candidates: make([]Candidate, 0, len(page.Records))}
	for _, rec := range page.Records {
		b.Candidates = append(b.Candidates, Candidate{Record: rec})
	}
	if page.More() {
		q.offset = page.Next()
		b.Checkpoint = NextCheckpoint(q.offset)
	} else {
		q.finished = true
		b.Checkpoint = CheckpointDone
	}
	return b, true, nil
}

// DirSource lists the records of a previous stage's output directory.
type DirSource struct {
	Dir *store.Dir

	done bool
}

// NewDirSource returns a source over the records in dir.
func NewDirSource(dir *store.Dir) *DirSource {
	return &DirSource{Dir: dir}
}

// Next returns every record in the directory as a single batch.
func (d *DirSource) Next(ctx context.Context, _ *ledger.Ledger) (Batch, bool, error) {
	if d.done {
		return Batch{}, false, nil
	}
	d.done = true

	names, err := d.Dir.List()
	if err != nil {
		return Batch{}, false, err
	}
	b := Batch{Candidates: make([]Candidate, 0, len(names))}
	for _, name := range names {
		rec, err := d.Dir.Read(name)
		if err != nil {
			return Batch{}, false, err
		}
		b.Candidates = append(b.Candidates, Candidate{Record: rec, Input: d.Dir})
	}
	zerolog.Ctx(ctx).Debug().Str("dir", d.Dir.Path()).Int("records", len(names)).Msg("listed input")
	return b, true, nil
}
