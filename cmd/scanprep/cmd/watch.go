package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scanprep/scanprep/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the intake directory and process arriving documents",
	Long: `Watches the configured watch directory and runs every arriving scan
through the pipeline. Files already present at startup are processed
first. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, cleanup, err := buildProcessor(globalConfig)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		files := make(chan string, 16)
		w := watcher.New(globalConfig.Dirs.Watch, globalConfig.Watcher)

		watchErr := make(chan error, 1)
		go func() {
			watchErr <- w.Watch(ctx, files)
		}()

		slog.Info("watching for documents", "dir", globalConfig.Dirs.Watch)
		for {
			select {
			case path := <-files:
				if _, err := p.Process(ctx, path); err != nil {
					slog.Error("document failed", "path", path, "error", err)
				}
			case err := <-watchErr:
				if err == nil || ctx.Err() != nil {
					return nil
				}
				return err
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
