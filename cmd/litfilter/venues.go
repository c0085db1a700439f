// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litfilter/internal/stage"
)

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Print the target venue table",
	Long: `Venues prints the table the venue stage matches against: the built-in
table, or the file named by venue.file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := stage.LoadVenues(viper.GetString("venue.file"))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACRONYM\tNAME")
		for _, v := range table {
			fmt.Fprintf(tw, "%s\t%s\n", v.Acronym, v.Name)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(venuesCmd)
}
