// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/litfilter/internal/acquire"
	"github.com/pdiddy/litfilter/internal/classify"
	"github.com/pdiddy/litfilter/internal/document"
	"github.com/pdiddy/litfilter/internal/ratelimit"
	"github.com/pdiddy/litfilter/internal/search"
	"github.com/pdiddy/litfilter/internal/stage"
	"github.com/pdiddy/litfilter/pkg/types"
)

// Defaults.
const (
	DefaultDataDir     = "data"
	DefaultTimeout     = 60 * time.Second
	DefaultUserAgent   = "litfilter/0.1"
	DefaultModel       = "claude-sonnet-4-5-20250929"
	DefaultInterval    = 3 * time.Second
	DefaultAIInterval  = 1 * time.Second
	DefaultResetWindow = 60 * time.Second
	DefaultMaxWait     = 2 * time.Hour
)

// WithDefaults fills unset fields of cfg.
func WithDefaults(cfg types.PipelineConfig) types.PipelineConfig {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = DefaultTimeout
	}
	if cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = DefaultUserAgent
	}
	if cfg.Search.Source == "" {
		cfg.Search.Source = search.SourceArxiv
	}
	if cfg.Search.PageSize == 0 {
		cfg.Search.PageSize = search.DefaultPageSize
	}
	if cfg.Recency.MinYear == 0 {
		cfg.Recency.MinYear = stage.DefaultMinYear
	}
	if cfg.Length.MinPages == 0 {
		cfg.Length.MinPages = stage.DefaultMinPages
	}
	if cfg.Length.Counter == "" {
		cfg.Length.Counter = types.CounterNative
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = DefaultModel
	}

	for _, g := range []*types.GateConfig{
		&cfg.Search.Arxiv.GateConfig,
		&cfg.Search.IEEE.GateConfig,
		&cfg.Search.ScienceDirect.GateConfig,
		&cfg.CrossRef.GateConfig,
		&cfg.Length.GateConfig,
	} {
		gateDefaults(g, DefaultInterval)
	}
	gateDefaults(&cfg.Classifier.GateConfig, DefaultAIInterval)
	return cfg
}

func gateDefaults(g *types.GateConfig, interval time.Duration) {
	if g.Interval == 0 {
		g.Interval = interval
	}
	if g.ResetWindow == 0 {
		g.ResetWindow = DefaultResetWindow
	}
	if g.MaxWait == 0 {
		g.MaxWait = DefaultMaxWait
	}
}

func gateOptions(g types.GateConfig, policy ratelimit.Policy, progress io.Writer) ratelimit.Options {
	return ratelimit.Options{
		Policy:      policy,
		Interval:    g.Interval,
		ResetWindow: g.ResetWindow,
		MaxWait:     g.MaxWait,
		Progress:    progress,
	}
}

// Connect builds the live connectors for cfg, each behind its own gate.
// Rate-limit countdowns are written to progress. The classifier is left nil
// when no API key is configured so that earlier stages still run.
func Connect(cfg types.PipelineConfig, progress io.Writer) (Deps, error) {
	cfg = WithDefaults(cfg)
	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	ua := cfg.HTTP.UserAgent

	var (
		searchGate *ratelimit.Gate
		sourceCfg  types.SourceConfig
	)
	switch cfg.Search.Source {
	case search.SourceIEEE:
		sourceCfg = cfg.Search.IEEE
		searchGate = ratelimit.New(search.SourceIEEE, gateOptions(sourceCfg.GateConfig, ratelimit.FixedInterval, progress))
	case search.SourceScienceDirect:
		sourceCfg = cfg.Search.ScienceDirect
		searchGate = ratelimit.New(search.SourceScienceDirect, gateOptions(sourceCfg.GateConfig, ratelimit.QuotaAware, progress))
	default:
		sourceCfg = cfg.Search.Arxiv
		searchGate = ratelimit.New(search.SourceArxiv, gateOptions(sourceCfg.GateConfig, ratelimit.FixedInterval, progress))
	}
	searcher, err := search.New(cfg.Search, client, searchGate, ua)
	if err != nil {
		return Deps{}, err
	}

	counter, err := document.New(cfg.Length)
	if err != nil {
		return Deps{}, fmt.Errorf("page counter: %w", err)
	}

	venues, err := stage.LoadVenues(cfg.Venue.File)
	if err != nil {
		return Deps{}, err
	}

	deps := Deps{
		Searcher: searcher,
		Resolver: &acquire.CrossRef{
			Client:    client,
			Gate:      ratelimit.New("crossref", gateOptions(cfg.CrossRef.GateConfig, ratelimit.FixedInterval, progress)),
			UserAgent: ua,
			Mailto:    cfg.CrossRef.Mailto,
		},
		Fetcher: &acquire.Downloader{
			Client:    client,
			Gate:      ratelimit.New("documents", gateOptions(cfg.Length.GateConfig, ratelimit.FixedInterval, progress)),
			UserAgent: ua,
		},
		Counter: counter,
		Venues:  venues,
	}

	// ScienceDirect full text carries its own page count.
	if cfg.Search.Source == search.SourceScienceDirect {
		deps.Articles = &acquire.Elsevier{
			Client:    client,
			Gate:      searchGate,
			UserAgent: ua,
			APIKey:    sourceCfg.APIKey,
		}
	}

	if cfg.Classifier.APIKey != "" {
		opts := gateOptions(cfg.Classifier.GateConfig, ratelimit.QuotaAware, progress)
		opts.RemainingHeader = classify.HeaderRequestsRemaining
		opts.ResetHeader = classify.HeaderRequestsReset
		deps.Classifier = &classify.Claude{
			APIKey: cfg.Classifier.APIKey,
			Model:  cfg.Classifier.Model,
			Client: &http.Client{Timeout: classifyTimeout(cfg.HTTP.Timeout)},
			Gate:   ratelimit.New("claude", opts),
		}
	}
	return deps, nil
}

// classifyTimeout allows for the model reading a whole paper.
func classifyTimeout(base time.Duration) time.Duration {
	if base < 5*time.Minute {
		return 5 * time.Minute
	}
	return base
}
