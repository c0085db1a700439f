// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litfilter/internal/logging"
	"github.com/pdiddy/litfilter/internal/pipeline"
	"github.com/pdiddy/litfilter/internal/stage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the filtering pipeline",
	Long: `Run executes the stages in order, each draining its input before the next
starts. Use --from to resume at a later stage; earlier stages are left as they
are. Rerunning after an interruption continues where the ledgers left off.`,
	RunE: runPipeline,
}

var stageCmd = &cobra.Command{
	Use:       "stage <name>",
	Short:     "Run a single stage",
	Long:      `Stage runs one stage against the output of the stage before it.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: stage.Names,
	RunE:      runSingleStage,
}

func init() {
	runCmd.Flags().String("from", "", "first stage to run (recency, doi, venue, length, classify)")
	for _, c := range []*cobra.Command{runCmd, stageCmd} {
		c.Flags().String("query", "", "search query for the recency stage (overrides search.query)")
		rootCmd.AddCommand(c)
	}
}

func newDriver(cmd *cobra.Command) (*pipeline.Driver, error) {
	if q, _ := cmd.Flags().GetString("query"); q != "" {
		viper.Set("search.query", q)
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	deps, err := pipeline.Connect(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, deps)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	d, err := newDriver(cmd)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")

	results, err := d.Run(cmd.Context(), os.Stdout, from)
	printResults(results)
	return err
}

func runSingleStage(cmd *cobra.Command, args []string) error {
	d, err := newDriver(cmd)
	if err != nil {
		return err
	}
	sum, err := d.RunStage(cmd.Context(), args[0], os.Stdout)
	printResults([]pipeline.Result{{Stage: args[0], Summary: sum}})
	return err
}

func printResults(results []pipeline.Result) {
	if len(results) == 0 {
		return
	}
	p := logging.NewPrinter(os.Stdout)
	failed := 0
	for _, r := range results {
		p.Info("summary", "%-8s %s", r.Stage, r.Summary)
		failed += r.Summary.Failed
	}
	if failed > 0 {
		p.Warning("note", "%d item(s) were rejected on connector failures; see the log for details", failed)
	}
}
