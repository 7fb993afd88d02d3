// Package cmd implements the scanprep command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanprep/scanprep/internal/config"
)

var (
	cfgFile      string
	verbose      bool
	globalConfig config.Config
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "scanprep",
	Short: "Preprocessing engine for scanned documents",
	Long: `scanprep prepares scanned documents (fax PDFs and TIFFs) for intake:
it straightens rotated pages, binarizes and cleans the bitmaps, extracts
and classifies the text, and rebuilds the document when pages had to be
rotated.

Examples:
  scanprep process inbox/fax_0312.pdf
  scanprep watch --config scanprep.yaml
  scanprep serve
  scanprep config init > scanprep.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., ~/.config/scanprep, /etc/scanprep)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (equivalent to log_level: debug)")

	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		globalConfig = config.NewLoader().LoadWithFile(cfgFile)

		level := globalConfig.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	}
}
