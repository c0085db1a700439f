// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litfilter CLI.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litfilter/internal/logging"
	"github.com/pdiddy/litfilter/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logReady is set once the run logger replaces the global one.
var logReady bool

var rootCmd = &cobra.Command{
	Use:   "litfilter",
	Short: "Staged, resumable filtering of scholarly search results",
	Long: `litfilter narrows the results of a scholarly search down to the papers worth
reading. Five stages run in order, each reading the records the previous stage
kept:

  recency   published in or after recency.min_year (default 2020)
  doi       carries a DOI
  venue     DOI resolves (CrossRef) to a target venue
  length    full text has at least length.min_pages pages (default 8)
  classify  an LLM answers NO to "is this a survey or review?"

Every stage keeps a progress ledger, so an interrupted run can be restarted
without repeating any completed network call.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// persistentPreRun loads .env, config, logging, and secrets before any command.
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	initConfig()

	noColor := viper.GetBool("no_color")
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
	logger, err := logging.New(os.Stderr, logging.Options{
		Level:   viper.GetString("log_level"),
		NoColor: noColor,
		RunID:   uuid.NewString(),
	})
	if err != nil {
		return err
	}
	log.Logger = logger
	logReady = true
	cmd.SetContext(logger.WithContext(cmd.Context()))

	if f := viper.ConfigFileUsed(); f != "" {
		logger.Info().Str("file", f).Msg("using config file")
	}

	s, err := secrets.Load(".secrets/")
	if err != nil {
		return err
	}
	loadedSecrets = s
	if len(s) > 0 {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logger.Debug().Strs("keys", keys).Msg("loaded secrets")
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRun

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./litfilter.yaml or ~/.config/litfilter/litfilter.yaml)")
	pf.String("data-dir", "", "base directory of the record store (default data)")
	pf.String("source", "", "search backend: arxiv, ieee, or sciencedirect (default arxiv)")
	pf.String("log-level", "info", "log level: debug, info, warn, or error")
	pf.Bool("no-color", false, "disable colored output")

	_ = viper.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = viper.BindPFlag("search.source", pf.Lookup("source"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("no_color", pf.Lookup("no-color"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litfilter")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litfilter"))
		}
	}

	viper.SetEnvPrefix("LITFILTER")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	registerDefaults()

	_ = viper.ReadInConfig()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logReady {
			log.Error().Err(err).Msg("litfilter failed")
		} else {
			color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
