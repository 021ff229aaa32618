// Command transitraptor is the batch/offline CLI over the accessibility
// routing core, grounded in tidbyt-gtfs/cmd's cobra command tree: a
// persistent --dsn flag shared by every subcommand, one subcommand per
// operation, no config file format (flags with env fallback only, per
// the teacher's minimalism).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dsn string

var rootCmd = &cobra.Command{
	Use:          "transitraptor",
	Short:        "Round-based transit accessibility routing core",
	Long:         "Computes shortest public-transit travel time distributions from one origin to a set of destinations.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("TRANSITRAPTOR_DSN"),
		"transit data source: postgres://... for Postgres, or a file path for SQLite")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
