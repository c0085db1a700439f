// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by every connector.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "litfilter/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// GateConfig holds the pacing settings of one external source.
type GateConfig struct {
	// Interval is the minimum delay between consecutive calls (0 disables pacing).
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// ResetWindow is how long to back off after HTTP 429 when the response
	// carries no usable reset header.
	ResetWindow time.Duration `json:"reset_window" yaml:"reset_window" mapstructure:"reset_window"`

	// MaxWait bounds the cumulative throttle time spent retrying one request.
	MaxWait time.Duration `json:"max_wait" yaml:"max_wait" mapstructure:"max_wait"`
}

// SourceConfig holds settings for one paged search backend.
type SourceConfig struct {
	GateConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey authenticates against the backend (IEEE, ScienceDirect).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// SearchConfig holds settings for the query-driven first stage.
type SearchConfig struct {
	// Source selects the backend: arxiv, ieee, or sciencedirect.
	Source string `json:"source" yaml:"source" mapstructure:"source"`

	// Query is the backend-specific search string.
	Query string `json:"query" yaml:"query" mapstructure:"query"`

	// PageSize is the number of records requested per page (default 200).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// FromYear and ToYear bound the ScienceDirect date filter (0 = unbounded).
	FromYear int `json:"from_year,omitempty" yaml:"from_year,omitempty" mapstructure:"from_year"`
	ToYear   int `json:"to_year,omitempty" yaml:"to_year,omitempty" mapstructure:"to_year"`

	Arxiv         SourceConfig `json:"arxiv" yaml:"arxiv" mapstructure:"arxiv"`
	IEEE          SourceConfig `json:"ieee" yaml:"ieee" mapstructure:"ieee"`
	ScienceDirect SourceConfig `json:"sciencedirect" yaml:"sciencedirect" mapstructure:"sciencedirect"`
}

// CrossRefConfig holds settings for the DOI lookup connector.
type CrossRefConfig struct {
	GateConfig `yaml:",inline" mapstructure:",squash"`

	// Mailto is sent in the User-Agent to reach CrossRef's polite pool.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty" mapstructure:"mailto"`
}

// RecencyConfig holds settings for the recency stage.
type RecencyConfig struct {
	// MinYear is the earliest accepted publication year (default 2020).
	MinYear int `json:"min_year" yaml:"min_year" mapstructure:"min_year"`
}

// VenueConfig holds settings for the venue stage.
type VenueConfig struct {
	// File is an optional YAML venue table replacing the built-in one.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// CounterBackend identifies the PDF page counting tool.
type CounterBackend string

const (
	CounterNative    CounterBackend = "native"
	CounterContainer CounterBackend = "container"
)

// LengthConfig holds settings for the length stage and the document host.
type LengthConfig struct {
	GateConfig `yaml:",inline" mapstructure:",squash"`

	// MinPages is the smallest accepted page count (default 8).
	MinPages int `json:"min_pages" yaml:"min_pages" mapstructure:"min_pages"`

	// Counter selects the page counter: native or container.
	Counter CounterBackend `json:"counter" yaml:"counter" mapstructure:"counter"`

	// Image is the container image providing pdfinfo for the container counter.
	Image string `json:"image,omitempty" yaml:"image,omitempty" mapstructure:"image"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// ClassifierConfig holds settings for the survey classification stage.
type ClassifierConfig struct {
	AIConfig   `yaml:",inline" mapstructure:",squash"`
	GateConfig `yaml:",inline" mapstructure:",squash"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	HTTP HTTPConfig `json:"http" yaml:"http" mapstructure:"http"`

	// DataDir is the base directory of the record store.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	Search     SearchConfig     `json:"search" yaml:"search" mapstructure:"search"`
	CrossRef   CrossRefConfig   `json:"crossref" yaml:"crossref" mapstructure:"crossref"`
	Recency    RecencyConfig    `json:"recency" yaml:"recency" mapstructure:"recency"`
	Venue      VenueConfig      `json:"venue" yaml:"venue" mapstructure:"venue"`
	Length     LengthConfig     `json:"length" yaml:"length" mapstructure:"length"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier" mapstructure:"classifier"`
}
