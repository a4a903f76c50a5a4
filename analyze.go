package main

import (
	"os"

	"github.com/daniellavrushin/lure/analyze"
	"github.com/daniellavrushin/lure/config"
	"github.com/spf13/cobra"
)

var analyzeOpts struct {
	path    string
	top     int
	noColor bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize a recorded interaction log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := analyze.LoadFile(analyzeOpts.path)
		if err != nil {
			return err
		}
		rep.Write(cmd.OutOrStdout(), analyze.Options{
			Top:     analyzeOpts.top,
			NoColor: analyzeOpts.noColor || os.Getenv("NO_COLOR") != "",
			Source:  analyzeOpts.path,
		})
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOpts.path, "log-file", config.DefaultSinkPath, "Interaction log file to read")
	analyzeCmd.Flags().IntVar(&analyzeOpts.top, "top", 20, "Number of top entries to show")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.noColor, "no-color", false, "Disable coloured headings")
}
