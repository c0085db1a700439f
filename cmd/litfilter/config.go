// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/litfilter/internal/pipeline"
	"github.com/pdiddy/litfilter/internal/secrets"
	"github.com/pdiddy/litfilter/pkg/types"
)

// envKeyReplacer maps nested keys to env names: search.query becomes
// LITFILTER_SEARCH_QUERY.
var envKeyReplacer = strings.NewReplacer(".", "_")

// registerDefaults declares every config key so AutomaticEnv can fill keys
// that appear in neither the config file nor the flags.
func registerDefaults() {
	d := pipeline.WithDefaults(types.PipelineConfig{})

	viper.SetDefault("data_dir", d.DataDir)
	viper.SetDefault("http.timeout", d.HTTP.Timeout)
	viper.SetDefault("http.user_agent", d.HTTP.UserAgent)

	viper.SetDefault("search.source", d.Search.Source)
	viper.SetDefault("search.query", "")
	viper.SetDefault("search.page_size", d.Search.PageSize)
	viper.SetDefault("search.from_year", 0)
	viper.SetDefault("search.to_year", 0)
	setGateDefaults("search.arxiv", d.Search.Arxiv.GateConfig)
	setGateDefaults("search.ieee", d.Search.IEEE.GateConfig)
	setGateDefaults("search.sciencedirect", d.Search.ScienceDirect.GateConfig)
	viper.SetDefault("search.ieee.api_key", "")
	viper.SetDefault("search.sciencedirect.api_key", "")

	setGateDefaults("crossref", d.CrossRef.GateConfig)
	viper.SetDefault("crossref.mailto", "")

	viper.SetDefault("recency.min_year", d.Recency.MinYear)
	viper.SetDefault("venue.file", "")

	setGateDefaults("length", d.Length.GateConfig)
	viper.SetDefault("length.min_pages", d.Length.MinPages)
	viper.SetDefault("length.counter", string(d.Length.Counter))
	viper.SetDefault("length.image", "")

	setGateDefaults("classifier", d.Classifier.GateConfig)
	viper.SetDefault("classifier.model", d.Classifier.Model)
	viper.SetDefault("classifier.api_key", "")
	_ = viper.BindEnv("classifier.api_key", "LITFILTER_CLASSIFIER_API_KEY", "ANTHROPIC_API_KEY")
}

func setGateDefaults(prefix string, g types.GateConfig) {
	viper.SetDefault(prefix+".interval", g.Interval)
	viper.SetDefault(prefix+".reset_window", g.ResetWindow)
	viper.SetDefault(prefix+".max_wait", g.MaxWait)
}

// loadConfig decodes the merged configuration and fills credentials from
// .secrets/ where config and environment leave them empty.
func loadConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}

	cfg.Classifier.APIKey = secrets.Fill(cfg.Classifier.APIKey, loadedSecrets, secrets.AnthropicAPIKey)
	cfg.Search.IEEE.APIKey = secrets.Fill(cfg.Search.IEEE.APIKey, loadedSecrets, secrets.IEEEAPIKey)
	cfg.Search.ScienceDirect.APIKey = secrets.Fill(cfg.Search.ScienceDirect.APIKey, loadedSecrets, secrets.ElsevierAPIKey)
	cfg.CrossRef.Mailto = secrets.Fill(cfg.CrossRef.Mailto, loadedSecrets, secrets.CrossRefMailto)

	return pipeline.WithDefaults(cfg), nil
}
