package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scanprep/scanprep/internal/server"
	"github.com/scanprep/scanprep/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API",
	Long: `Serves the review API over HTTP: processed document listings,
recognized text and review flags, plus Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := globalConfig.Server
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		st, err := store.Open(globalConfig.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.New(cfg, st).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
