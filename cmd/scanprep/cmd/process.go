package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/scanprep/scanprep/internal/config"
	"github.com/scanprep/scanprep/internal/instrument"
	"github.com/scanprep/scanprep/internal/pipeline"
	"github.com/scanprep/scanprep/internal/process"
	"github.com/scanprep/scanprep/internal/recognize"
	"github.com/scanprep/scanprep/internal/reconstruct"
	"github.com/scanprep/scanprep/internal/render"
	"github.com/scanprep/scanprep/internal/store"
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Process one or more scanned documents",
	Long: `Runs each file through the preprocessing pipeline and files the result
in the final directory. Files are claimed into the work directory first,
so they must live in (or be moved into) the watch directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cleanup, err := buildProcessor(globalConfig)
		if err != nil {
			return err
		}
		defer cleanup()

		var failed int
		for _, path := range args {
			if !render.IsSupported(path) {
				slog.Warn("skipping unsupported file", "path", path)
				continue
			}
			res, err := p.Process(cmd.Context(), path)
			if err != nil {
				slog.Error("document failed", "path", path, "error", err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d corrected, type %s\n",
				res.Basename, res.Pages, res.CorrectedPages, res.DocType)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}

// buildProcessor assembles the intake flow from the loaded configuration.
// The returned cleanup closes the OCR engine and the database.
func buildProcessor(cfg config.Config) (*process.Processor, func(), error) {
	if err := cfg.Dirs.Ensure(); err != nil {
		return nil, nil, err
	}

	sink := instrument.NewSink(cfg.Debug)
	p := &process.Processor{
		Dirs:     cfg.Dirs,
		Runner:   pipeline.NewRunner(cfg.Stages, sink),
		Parallel: cfg.Parallel,
		Rebuild:  reconstruct.New(),
	}

	var closers []func()
	if cfg.Recognition.Enabled {
		engine := recognize.NewTesseract(cfg.Recognition)
		p.Engine = engine
		closers = append(closers, func() { _ = engine.Close() })
	}
	if cfg.Database.Path != "" {
		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			slog.Warn("cannot open database, results will not be persisted", "error", err)
		} else {
			p.Store = st
			closers = append(closers, func() { _ = st.Close() })
		}
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return p, cleanup, nil
}
