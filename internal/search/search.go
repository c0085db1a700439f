// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search implements the paged search connectors that feed the first
// pipeline stage. Each connector wraps one scholarly API, issues exactly one
// gated request per page, and normalizes entries into types.Record values.
package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/litfilter/internal/ratelimit"
	"github.com/pdiddy/litfilter/pkg/types"
)

// Source names accepted by New and used as data subdirectories.
const (
	SourceArxiv         = "arxiv"
	SourceIEEE          = "ieee"
	SourceScienceDirect = "sciencedirect"
)

// DefaultPageSize is the number of entries requested per page.
const DefaultPageSize = 200

// Searcher pages through the results of one query. Implementations issue
// one gated request per call.
type Searcher interface {
	Name() string
	Page(ctx context.Context, query string, start int) (Page, error)
}

// Page is one batch of search results.
type Page struct {
	// Start is the offset the page was requested at.
	Start int

	// Size is the page size that was requested; the next page starts at
	// Start+Size.
	Size int

	// Entries is the number of raw entries the source returned, including
	// entries that could not be normalized.
	Entries int

	// Total is the source-reported result count, or -1 when unknown.
	Total int

	Records []types.Record
}

// Next returns the offset of the following page.
func (p Page) Next() int { return p.Start + p.Size }

// More reports whether another page should be requested. Paging stops at
// the first empty batch or once the reported total is reached.
func (p Page) More() bool {
	if p.Entries == 0 {
		return false
	}
	return p.Total < 0 || p.Next() < p.Total
}

// New returns the connector for cfg.Source. Each connector owns gate; the
// caller picks the gate policy suited to the source.
func New(cfg types.SearchConfig, client *http.Client, gate *ratelimit.Gate, userAgent string) (Searcher, error) {
	size := cfg.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	switch cfg.Source {
	case SourceArxiv, "":
		return &Arxiv{Client: client, Gate: gate, UserAgent: userAgent, PageSize: size}, nil
	case SourceIEEE:
		if cfg.IEEE.APIKey == "" {
			return nil, fmt.Errorf("ieee source requires an API key (ieee-api-key secret or search.ieee.api_key)")
		}
		return &IEEE{Client: client, Gate: gate, UserAgent: userAgent, APIKey: cfg.IEEE.APIKey, PageSize: size}, nil
	case SourceScienceDirect:
		if cfg.ScienceDirect.APIKey == "" {
			return nil, fmt.Errorf("sciencedirect source requires an API key (elsevier-api-key secret or search.sciencedirect.api_key)")
		}
		return &ScienceDirect{
			Client:    client,
			Gate:      gate,
			UserAgent: userAgent,
			APIKey:    cfg.ScienceDirect.APIKey,
			PageSize:  size,
			FromYear:  cfg.FromYear,
			ToYear:    cfg.ToYear,
		}, nil
	default:
		return nil, fmt.Errorf("unknown search source %q (want arxiv, ieee, or sciencedirect)", cfg.Source)
	}
}

// yearStart returns January 1 of year, used when a source reports only a year.
func yearStart(year int) time.Time {
	if year <= 0 {
		return time.Time{}
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
