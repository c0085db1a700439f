// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/litfilter/internal/logging"
	"github.com/pdiddy/litfilter/internal/pipeline"
	"github.com/pdiddy/litfilter/internal/stage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the stage directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		layout := pipeline.NewLayout(cfg.DataDir, cfg.Search.Source)
		if err := layout.Init(); err != nil {
			return err
		}
		p := logging.NewPrinter(cmd.OutOrStdout())
		for _, name := range stage.Names {
			p.Success("created", "%s", layout.Dir(name))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
