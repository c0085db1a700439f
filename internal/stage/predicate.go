// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pdiddy/litfilter/internal/acquire"
	"github.com/pdiddy/litfilter/internal/document"
	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/pkg/types"
)

// Default thresholds.
const (
	DefaultMinYear  = 2020
	DefaultMinPages = 8
)

// Recency keeps records published in MinYear or later.
type Recency struct {
	MinYear int
}

func (Recency) ID(rec types.Record) string { return rec.Key() }

func (p Recency) Evaluate(_ context.Context, c Candidate) (Verdict, error) {
	minYear := p.MinYear
	if minYear == 0 {
		minYear = DefaultMinYear
	}
	year := c.Record.Year()
	if year < minYear {
		return Verdict{Reason: fmt.Sprintf("published %d, before %d", year, minYear)}, nil
	}
	return Verdict{Keep: true, Record: c.Record}, nil
}

// HasDOI keeps records carrying a DOI.
type HasDOI struct{}

func (HasDOI) ID(rec types.Record) string { return rec.Key() }

func (HasDOI) Evaluate(_ context.Context, c Candidate) (Verdict, error) {
	if acquire.NormalizeDOI(c.Record.DOI) == "" {
		return Verdict{Reason: "no DOI"}, nil
	}
	return Verdict{Keep: true, Record: c.Record}, nil
}

// Resolver looks up DOI metadata.
type Resolver interface {
	Lookup(ctx context.Context, doi string) (types.Work, error)
}

// VenueMatch resolves the DOI and keeps records published in a target venue.
type VenueMatch struct {
	Resolver Resolver
	Venues   []Target
}

// ID keys the venue stage by DOI so a DOI is resolved at most once.
func (VenueMatch) ID(rec types.Record) string {
	if doi := acquire.NormalizeDOI(rec.DOI); doi != "" {
		return "doi:" + strings.ToLower(doi)
	}
	return rec.Key()
}

func (p VenueMatch) Evaluate(ctx context.Context, c Candidate) (Verdict, error) {
	doi := acquire.NormalizeDOI(c.Record.DOI)
	if doi == "" {
		return Verdict{Reason: "no DOI"}, nil
	}

	work, err := p.Resolver.Lookup(ctx, doi)
	if err != nil {
		return Verdict{}, err
	}
	if work.ContainerTitle == "" {
		return Verdict{Reason: "DOI has no container title"}, nil
	}

	target, ok := MatchVenue(work.ContainerTitle, p.Venues)
	if !ok {
		return Verdict{Reason: fmt.Sprintf("venue %q not targeted", work.ContainerTitle)}, nil
	}

	acronym, name := SplitContainerTitle(work.ContainerTitle)
	rec := c.Record
	rec.Venue = &types.Venue{
		Publisher:      work.Publisher,
		ContainerTitle: work.ContainerTitle,
		Acronym:        acronym,
		Name:           name,
		Matched:        targetLabel(target),
		PublishedYear:  work.PublishedYear,
		URL:            work.URL,
	}
	return Verdict{Keep: true, Record: rec}, nil
}

func targetLabel(t Target) string {
	if t.Acronym != "" {
		return t.Acronym
	}
	return t.Name
}

// Fetcher downloads a full-text document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArticleReader reads publisher full text that reports its own page
// count.
type ArticleReader interface {
	Article(ctx context.Context, url string) (acquire.Article, error)
}

// MinLength downloads the document and keeps records with at least
// MinPages pages. The fetched document is stored beside the kept record.
// Records carrying an article API link are measured by the page count in
// the article instead, when Articles is set.
type MinLength struct {
	Fetcher  Fetcher
	Counter  document.Counter
	Articles ArticleReader
	MinPages int
}

// ID keys the length stage by the URL it fetches so each document is
// fetched at most once.
func (p MinLength) ID(rec types.Record) string {
	if p.fromArticle(rec) {
		return rec.ArticleURL
	}
	if u := acquire.DocumentURL(rec); u != "" {
		return u
	}
	return rec.Key()
}

func (p MinLength) fromArticle(rec types.Record) bool {
	return p.Articles != nil && rec.ArticleURL != ""
}

func (p MinLength) Evaluate(ctx context.Context, c Candidate) (Verdict, error) {
	minPages := p.MinPages
	if minPages == 0 {
		minPages = DefaultMinPages
	}
	if p.fromArticle(c.Record) {
		return p.evaluateArticle(ctx, c.Record, minPages)
	}

	u := acquire.DocumentURL(c.Record)
	if u == "" {
		return Verdict{Reason: "no document URL"}, nil
	}

	data, err := p.Fetcher.Fetch(ctx, u)
	if err != nil {
		return Verdict{}, err
	}
	pages, err := p.Counter.CountPages(ctx, data)
	if err != nil {
		return Verdict{}, fmt.Errorf("%s: %w", u, err)
	}
	if pages < minPages {
		return Verdict{Reason: fmt.Sprintf("%d pages, fewer than %d", pages, minPages)}, nil
	}

	rec := c.Record
	rec.Pages = pages
	return Verdict{Keep: true, Record: rec, Document: data}, nil
}

func (p MinLength) evaluateArticle(ctx context.Context, rec types.Record, minPages int) (Verdict, error) {
	a, err := p.Articles.Article(ctx, rec.ArticleURL)
	if err != nil {
		return Verdict{}, err
	}
	if a.Pages <= 0 {
		return Verdict{}, fmt.Errorf("%s: article reports no page count: %w", rec.ArticleURL, document.ErrUnreadable)
	}
	if a.Pages < minPages {
		return Verdict{Reason: fmt.Sprintf("%d pages, fewer than %d", a.Pages, minPages)}, nil
	}

	rec.Pages = a.Pages
	v := Verdict{Keep: true, Record: rec}
	if a.Text != "" {
		v.Document = []byte(a.Text)
	}
	return v, nil
}

// Classifier decides whether a document is a survey.
type Classifier interface {
	IsSurvey(ctx context.Context, doc []byte) (bool, error)
}

// NotSurvey keeps records whose stored document the classifier answers NO
// for. The document is read from the input directory and copied to the
// output with the kept record.
type NotSurvey struct {
	Classifier Classifier
}

func (NotSurvey) ID(rec types.Record) string { return rec.Key() }

func (p NotSurvey) Evaluate(ctx context.Context, c Candidate) (Verdict, error) {
	if c.Input == nil {
		return Verdict{}, errors.New("classification needs records read from a stage directory")
	}
	data, err := c.Input.ReadDocument(c.Record)
	if errors.Is(err, os.ErrNotExist) {
		return Verdict{}, fmt.Errorf("%v: %w", err, httputil.ErrNotFound)
	}
	if err != nil {
		return Verdict{}, err
	}

	survey, err := p.Classifier.IsSurvey(ctx, data)
	if err != nil {
		return Verdict{}, err
	}
	if survey {
		return Verdict{Reason: "survey or review"}, nil
	}
	return Verdict{Keep: true, Record: c.Record, Document: data}, nil
}
