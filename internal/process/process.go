// Package process drives one document through the whole intake flow:
// claim the file from the watch directory, decode its pages, run the
// preprocessing pipeline, recognize and classify the text, rebuild the
// document if pages were rotated and file the result.
package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scanprep/scanprep/internal/classify"
	"github.com/scanprep/scanprep/internal/document"
	"github.com/scanprep/scanprep/internal/metrics"
	"github.com/scanprep/scanprep/internal/pipeline"
	"github.com/scanprep/scanprep/internal/recognize"
	"github.com/scanprep/scanprep/internal/reconstruct"
	"github.com/scanprep/scanprep/internal/render"
	"github.com/scanprep/scanprep/internal/store"
)

// Dirs holds the intake directory layout.
type Dirs struct {
	// Watch receives incoming scans.
	Watch string `mapstructure:"watch" yaml:"watch" json:"watch"`
	// Work holds documents while they are being processed.
	Work string `mapstructure:"work" yaml:"work" json:"work"`
	// Final receives finished documents.
	Final string `mapstructure:"final" yaml:"final" json:"final"`
}

// DefaultDirs provides the documented defaults.
func DefaultDirs() Dirs {
	return Dirs{Watch: "watch", Work: "work", Final: "final"}
}

// Ensure creates the directories if needed.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Watch, d.Work, d.Final} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Result summarizes one processed document.
type Result struct {
	Basename       string
	FinalPath      string
	Pages          int
	CorrectedPages int
	Reconstructed  bool
	DocType        string
	Text           string
}

// Processor runs the intake flow. Engine and Store are optional; without
// an engine documents skip recognition and classify as other, without a
// store results are not persisted.
type Processor struct {
	Dirs     Dirs
	Runner   *pipeline.Runner
	Parallel pipeline.ParallelConfig
	Rebuild  *reconstruct.Reconstructor
	Engine   recognize.Engine
	Store    *store.Store
}

// Process runs one document end to end. The file is moved to the work
// directory first so a second worker can never claim it, and lands in
// the final directory whatever the pipeline did to its pages. A
// reconstruction failure aborts the document and leaves it in the work
// directory for operator inspection.
func (p *Processor) Process(ctx context.Context, path string) (Result, error) {
	workPath := filepath.Join(p.Dirs.Work, filepath.Base(path))
	if err := moveFile(path, workPath); err != nil {
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("claiming %s: %w", filepath.Base(path), err)
	}

	res, err := p.run(ctx, workPath)
	if err != nil {
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return Result{}, err
	}

	finalPath := filepath.Join(p.Dirs.Final, filepath.Base(workPath))
	if err := moveFile(workPath, finalPath); err != nil {
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("filing %s: %w", res.Basename, err)
	}
	res.FinalPath = finalPath

	p.persist(ctx, res)
	metrics.DocumentsProcessed.WithLabelValues("ok").Inc()
	slog.Info("document processed",
		"document", res.Basename, "pages", res.Pages,
		"corrected", res.CorrectedPages, "type", res.DocType)
	return res, nil
}

func (p *Processor) run(ctx context.Context, workPath string) (Result, error) {
	images, err := render.Pages(workPath)
	if err != nil {
		return Result{}, fmt.Errorf("decoding %s: %w", filepath.Base(workPath), err)
	}

	doc := document.New(workPath, images)
	if err := p.Runner.ProcessDocument(ctx, doc, p.Parallel); err != nil {
		return Result{}, fmt.Errorf("processing %s: %w", doc.Basename, err)
	}

	res := Result{
		Basename: doc.Basename,
		Pages:    len(doc.Pages),
		DocType:  classify.TypeOther,
	}
	for _, corrected := range doc.CorrectedFlags() {
		if corrected {
			res.CorrectedPages++
		}
	}

	if p.Engine != nil {
		text, err := recognize.Document(ctx, p.Engine, doc)
		if err != nil {
			// Recognition feeds classification only; the document
			// itself is intact, so keep going.
			slog.Warn("text recognition failed", "document", doc.Basename, "error", err)
		} else {
			res.Text = text
			res.DocType = classify.Classify(text).Type
		}
	}

	if _, rebuilt, err := p.Rebuild.Reconstruct(doc); err != nil {
		return Result{}, err
	} else if rebuilt {
		res.Reconstructed = true
	}
	return res, nil
}

// persist is best effort; a dead database must not lose the document.
func (p *Processor) persist(ctx context.Context, res Result) {
	if p.Store == nil {
		return
	}
	_, err := p.Store.Insert(ctx, store.Record{
		Basename:       res.Basename,
		Path:           res.FinalPath,
		DocType:        res.DocType,
		Pages:          res.Pages,
		CorrectedPages: res.CorrectedPages,
		Reconstructed:  res.Reconstructed,
		Text:           res.Text,
	})
	if err != nil {
		slog.Warn("cannot persist result", "document", res.Basename, "error", err)
	}
}

// moveFile renames src to dst, copying across filesystems when rename
// is not possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
