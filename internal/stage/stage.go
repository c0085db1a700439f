// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stage implements the generic filtering step of the pipeline and
// its five predicates. A stage reads candidates from a Source, evaluates one
// predicate per candidate, writes kept records to its output directory, and
// records every terminally handled candidate in its ledger so a rerun never
// repeats work.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/pdiddy/litfilter/internal/document"
	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ledger"
	"github.com/pdiddy/litfilter/internal/logging"
	"github.com/pdiddy/litfilter/internal/store"
	"github.com/pdiddy/litfilter/pkg/types"
)

// Stage names in pipeline order.
const (
	NameRecency  = "recency"
	NameDOI      = "doi"
	NameVenue    = "venue"
	NameLength   = "length"
	NameClassify = "classify"
)

// Names lists the stages in the order they run.
var Names = []string{NameRecency, NameDOI, NameVenue, NameLength, NameClassify}

// Candidate is one record offered to a stage.
type Candidate struct {
	Record types.Record

	// Input is the directory the record was read from; nil for records
	// that come straight from a search query.
	Input *store.Dir
}

// Verdict is the outcome of evaluating a predicate on a candidate.
type Verdict struct {
	Keep bool

	// Record is the possibly augmented record to write when Keep is set.
	Record types.Record

	// Document is written beside the kept record when non-nil.
	Document []byte

	// Reason explains a rejection.
	Reason string
}

// Predicate is the acceptance test of one stage.
type Predicate interface {
	// ID returns the ledger identifier of rec for this stage.
	ID(rec types.Record) string

	// Evaluate decides whether to keep the candidate. It makes at most one
	// external call. A returned error wrapping httputil.ErrNotFound,
	// httputil.ErrServer or document.ErrUnreadable rejects only this
	// candidate; any other error stops the stage.
	Evaluate(ctx context.Context, c Candidate) (Verdict, error)
}

// Summary counts the candidates a stage run handled.
type Summary struct {
	// Accepted candidates were written to the output directory.
	Accepted int
	// Rejected candidates failed the predicate.
	Rejected int
	// Skipped candidates were already in the ledger.
	Skipped int
	// Failed candidates hit a definitive connector failure and were rejected.
	Failed int
}

// Total returns the number of candidates seen.
func (s Summary) Total() int { return s.Accepted + s.Rejected + s.Skipped + s.Failed }

func (s Summary) String() string {
	return fmt.Sprintf("%d accepted, %d rejected, %d failed, %d skipped", s.Accepted, s.Rejected, s.Failed, s.Skipped)
}

// Stage binds a name to a predicate.
type Stage struct {
	Name      string
	Predicate Predicate
}

// Run drains src through the predicate. Kept records go to out and every
// handled candidate is marked in l after its output is written. Run stops
// at the first error that is not a definitive per-item failure, leaving
// that candidate unmarked so the next run retries it.
func (s *Stage) Run(ctx context.Context, src Source, out *store.Dir, l *ledger.Ledger, w io.Writer) (Summary, error) {
	var sum Summary
	p := logging.NewPrinter(w)
	log := zerolog.Ctx(ctx).With().Str("stage", s.Name).Logger()

	for {
		batch, ok, err := src.Next(ctx, l)
		if err != nil {
			return sum, fmt.Errorf("stage %s: reading input: %w", s.Name, err)
		}
		if !ok {
			break
		}

		for _, c := range batch.Candidates {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if err := s.handle(ctx, c, out, l, p, &sum); err != nil {
				return sum, err
			}
		}

		if batch.Checkpoint != "" {
			if err := l.Mark(batch.Checkpoint); err != nil {
				return sum, err
			}
			log.Debug().Str("checkpoint", batch.Checkpoint).Msg("batch complete")
		}
	}

	log.Info().
		Int("accepted", sum.Accepted).
		Int("rejected", sum.Rejected).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Msg("stage complete")
	return sum, nil
}

func (s *Stage) handle(ctx context.Context, c Candidate, out *store.Dir, l *ledger.Ledger, p *logging.Printer, sum *Summary) error {
	rec := c.Record
	id := s.Predicate.ID(rec)
	if id == "" {
		id = rec.Key()
	}

	if l.Has(id) {
		sum.Skipped++
		p.Warning("skipped", "%s", rec.Title)
		return nil
	}
	// Output written by a run that died before marking.
	if out.Exists(rec) {
		sum.Skipped++
		p.Warning("skipped", "%s (already saved)", rec.Title)
		return l.Mark(id)
	}

	v, err := s.Predicate.Evaluate(ctx, c)
	switch {
	case err == nil:
	case Definitive(err):
		sum.Failed++
		p.Error("failed", "%s: %v", rec.Title, err)
		zerolog.Ctx(ctx).Debug().Err(err).Str("stage", s.Name).Str("id", id).Msg("candidate rejected on failure")
		return l.Mark(id)
	default:
		p.Error("error", "%s: %v", rec.Title, err)
		return fmt.Errorf("stage %s: %q: %w", s.Name, rec.Title, err)
	}

	if !v.Keep {
		sum.Rejected++
		p.Warning("rejected", "%s: %s", rec.Title, v.Reason)
		return l.Mark(id)
	}

	kept := v.Record
	if v.Document != nil {
		name, err := out.WriteDocument(kept, v.Document)
		if err != nil {
			return fmt.Errorf("stage %s: %w", s.Name, err)
		}
		kept.Document = name
	}
	if _, err := out.Write(kept); err != nil {
		return fmt.Errorf("stage %s: %w", s.Name, err)
	}
	sum.Accepted++
	p.Success("saved", "%s", kept.Title)
	return l.Mark(id)
}

// Definitive reports whether err rejects a single candidate rather than
// stopping the stage.
func Definitive(err error) bool {
	if httputil.Retryable(err) || errors.Is(err, httputil.ErrMalformed) || errors.Is(err, httputil.ErrAuth) {
		return false
	}
	return errors.Is(err, httputil.ErrNotFound) ||
		errors.Is(err, httputil.ErrServer) ||
		errors.Is(err, httputil.ErrUnreachable) ||
		errors.Is(err, document.ErrUnreadable)
}
