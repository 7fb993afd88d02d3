package pipeline

import (
	"context"
	"runtime"
	"sync"

	"github.com/scanprep/scanprep/internal/document"
)

// ParallelConfig holds configuration for parallel page processing.
type ParallelConfig struct {
	// MaxWorkers is the number of parallel workers (0 = runtime.NumCPU()).
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// DefaultParallelConfig returns sensible defaults.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// pageJob is one page to process.
type pageJob struct {
	index int
	page  *document.Page
}

// processPagesParallel fans the document's pages out to a worker pool
// and joins before returning. Pages are mutated in place, so no result
// collection is needed; the join barrier guarantees every page finished
// before the document moves on.
func (r *Runner) processPagesParallel(ctx context.Context, doc *document.Document, config ParallelConfig) error {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}

	if len(doc.Pages) == 1 || config.MaxWorkers == 1 {
		for i := range doc.Pages {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.ProcessPage(ctx, doc.Basename, &doc.Pages[i])
		}
		return nil
	}

	workers := min(config.MaxWorkers, len(doc.Pages))
	jobs := make(chan pageJob, len(doc.Pages))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				r.ProcessPage(ctx, doc.Basename, job.page)
			}
		}()
	}

	for i := range doc.Pages {
		jobs <- pageJob{index: i, page: &doc.Pages[i]}
	}
	close(jobs)

	wg.Wait()
	return ctx.Err()
}
