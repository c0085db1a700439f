// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the filtering stages in order. Each stage reads the
// output directory of the stage before it, so stages share nothing but the
// record store and any suffix of the pipeline can be rerun on its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/litfilter/internal/document"
	"github.com/pdiddy/litfilter/internal/ledger"
	"github.com/pdiddy/litfilter/internal/logging"
	"github.com/pdiddy/litfilter/internal/search"
	"github.com/pdiddy/litfilter/internal/stage"
	"github.com/pdiddy/litfilter/internal/store"
	"github.com/pdiddy/litfilter/pkg/types"
)

// Layout maps stage names to directories under <data>/<source>.
type Layout struct {
	Root string
}

// NewLayout returns the layout for one search source.
func NewLayout(dataDir, source string) Layout {
	if source == "" {
		source = search.SourceArxiv
	}
	return Layout{Root: filepath.Join(dataDir, source)}
}

// Dir returns the output directory of the named stage, for example
// "data/arxiv/03-venue".
func (l Layout) Dir(name string) string {
	i := slices.Index(stage.Names, name)
	if i < 0 {
		return filepath.Join(l.Root, name)
	}
	return filepath.Join(l.Root, fmt.Sprintf("%02d-%s", i+1, name))
}

// Input returns the directory the named stage reads, or "" for the first
// stage, which reads the live query.
func (l Layout) Input(name string) string {
	i := slices.Index(stage.Names, name)
	if i <= 0 {
		return ""
	}
	return l.Dir(stage.Names[i-1])
}

// Init creates every stage directory.
func (l Layout) Init() error {
	for _, name := range stage.Names {
		if _, err := store.Open(l.Dir(name)); err != nil {
			return err
		}
	}
	return nil
}

// Deps are the connectors the stages call.
type Deps struct {
	Searcher   search.Searcher
	Resolver   stage.Resolver
	Fetcher    stage.Fetcher
	Counter    document.Counter
	Articles   stage.ArticleReader
	Classifier stage.Classifier
	Venues     []stage.Target
}

// Result is the outcome of one stage in a pipeline run.
type Result struct {
	Stage   string
	Summary stage.Summary
}

// Driver runs stages against a layout.
type Driver struct {
	cfg    types.PipelineConfig
	deps   Deps
	layout Layout
}

// New returns a driver for cfg. Missing connectors only fail the stages
// that need them.
func New(cfg types.PipelineConfig, deps Deps) (*Driver, error) {
	cfg = WithDefaults(cfg)
	if cfg.Length.MinPages < 0 || cfg.Recency.MinYear < 0 {
		return nil, errors.New("recency.min_year and length.min_pages must not be negative")
	}
	if deps.Venues == nil {
		deps.Venues = stage.DefaultVenues()
	}
	return &Driver{cfg: cfg, deps: deps, layout: NewLayout(cfg.DataDir, cfg.Search.Source)}, nil
}

// Layout returns the directory layout the driver writes.
func (d *Driver) Layout() Layout { return d.layout }

// Run executes the stages in order starting at from ("" runs all). Each
// stage drains completely before the next starts. Run stops at the first
// stage error and returns the results gathered so far.
func (d *Driver) Run(ctx context.Context, w io.Writer, from string) ([]Result, error) {
	start := 0
	if from != "" {
		start = slices.Index(stage.Names, from)
		if start < 0 {
			return nil, unknownStage(from)
		}
	}

	var results []Result
	for _, name := range stage.Names[start:] {
		sum, err := d.RunStage(ctx, name, w)
		results = append(results, Result{Stage: name, Summary: sum})
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunStage executes one stage.
func (d *Driver) RunStage(ctx context.Context, name string, w io.Writer) (stage.Summary, error) {
	pred, err := d.predicate(name)
	if err != nil {
		return stage.Summary{}, err
	}
	src, err := d.source(name)
	if err != nil {
		return stage.Summary{}, err
	}

	out, err := store.Open(d.layout.Dir(name))
	if err != nil {
		return stage.Summary{}, err
	}
	l, err := ledger.Open(filepath.Join(out.Path(), ledger.FileName))
	if err != nil {
		return stage.Summary{}, err
	}
	defer l.Close()

	log := zerolog.Ctx(ctx).With().Str("stage", name).Logger()
	ctx = log.WithContext(ctx)
	log.Info().Str("output", out.Path()).Int("ledger", l.Len()).Msg("stage starting")

	p := logging.NewPrinter(w)
	p.Info("stage", "%s -> %s", name, out.Path())

	s := &stage.Stage{Name: name, Predicate: pred}
	sum, err := s.Run(ctx, src, out, l, w)
	if err != nil {
		p.Error("stopped", "%s after %s: %v", name, sum, err)
		return sum, err
	}
	p.Info("done", "%s: %s", name, sum)
	return sum, nil
}

func (d *Driver) source(name string) (stage.Source, error) {
	if name == stage.NameRecency {
		if d.deps.Searcher == nil {
			return nil, errors.New("recency stage needs a search connector")
		}
		if strings.TrimSpace(d.cfg.Search.Query) == "" {
			return nil, errors.New("recency stage needs a query (search.query or --query)")
		}
		return stage.NewQuerySource(d.deps.Searcher, d.cfg.Search.Query), nil
	}
	in, err := store.Open(d.layout.Input(name))
	if err != nil {
		return nil, err
	}
	return stage.NewDirSource(in), nil
}

func (d *Driver) predicate(name string) (stage.Predicate, error) {
	switch name {
	case stage.NameRecency:
		return stage.Recency{MinYear: d.cfg.Recency.MinYear}, nil
	case stage.NameDOI:
		return stage.HasDOI{}, nil
	case stage.NameVenue:
		if d.deps.Resolver == nil {
			return nil, errors.New("venue stage needs a DOI resolver")
		}
		return stage.VenueMatch{Resolver: d.deps.Resolver, Venues: d.deps.Venues}, nil
	case stage.NameLength:
		if d.deps.Fetcher == nil || d.deps.Counter == nil {
			return nil, errors.New("length stage needs a document fetcher and page counter")
		}
		return stage.MinLength{
			Fetcher:  d.deps.Fetcher,
			Counter:  d.deps.Counter,
			Articles: d.deps.Articles,
			MinPages: d.cfg.Length.MinPages,
		}, nil
	case stage.NameClassify:
		if d.deps.Classifier == nil {
			return nil, errors.New("classify stage needs an Anthropic API key (anthropic-api-key secret or classifier.api_key)")
		}
		return stage.NotSurvey{Classifier: d.deps.Classifier}, nil
	default:
		return nil, unknownStage(name)
	}
}

func unknownStage(name string) error {
	return fmt.Errorf("unknown stage %q (want one of %s)", name, strings.Join(stage.Names, ", "))
}
