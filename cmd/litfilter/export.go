// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litfilter/internal/export"
	"github.com/pdiddy/litfilter/internal/pipeline"
	"github.com/pdiddy/litfilter/internal/stage"
	"github.com/pdiddy/litfilter/internal/store"
	"github.com/pdiddy/litfilter/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a stage's kept records as a CSL-YAML bibliography",
	Long: `Export reads the records kept by a stage (classify by default) and writes
them as CSL-YAML, ready for Pandoc's --bibliography or a reference manager.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("stage", stage.NameClassify, "stage whose output to export")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("stage")
	if !slices.Contains(stage.Names, name) {
		return fmt.Errorf("unknown stage %q", name)
	}
	dir, err := store.Open(pipeline.NewLayout(cfg.DataDir, cfg.Search.Source).Dir(name))
	if err != nil {
		return err
	}
	names, err := dir.List()
	if err != nil {
		return err
	}
	recs := make([]types.Record, 0, len(names))
	for _, n := range names {
		rec, err := dir.Read(n)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}

	var w io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	return export.WriteCSL(w, recs)
}
