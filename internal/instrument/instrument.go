// Package instrument records per-stage timings and debug snapshots while
// a document moves through the pipeline. Recording is fire and forget:
// any failure to write a log line or a snapshot is logged at warn level
// and never surfaces to the caller, so instrumentation can never break
// processing.
package instrument

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Config controls instrumentation output.
type Config struct {
	SaveImages   bool              `mapstructure:"save_images" yaml:"save_images" json:"save_images"`
	BaseFolder   string            `mapstructure:"base_folder" yaml:"base_folder" json:"base_folder"`
	Subfolders   map[string]string `mapstructure:"subfolders" yaml:"subfolders" json:"subfolders"`
	LogTimings   bool              `mapstructure:"log_timings" yaml:"log_timings" json:"log_timings"`
	TimingFolder string            `mapstructure:"timing_folder" yaml:"timing_folder" json:"timing_folder"`
}

// DefaultConfig provides the documented defaults. Each stage writes its
// snapshots into its own subfolder under the base folder.
func DefaultConfig() Config {
	return Config{
		SaveImages: true,
		BaseFolder: "debug_imgs",
		Subfolders: map[string]string{
			"orientation_correction":   "orientation",
			"basic_preprocessing":      "basic",
			"noise_removal":            "noise",
			"morphological_operations": "morphology",
			"line_removal":             "lines",
		},
		LogTimings:   true,
		TimingFolder: "timings",
	}
}

// Sink writes timing lines and debug snapshots. Safe for concurrent use.
type Sink struct {
	cfg Config
	mu  sync.Mutex
	now func() time.Time
}

// NewSink builds a Sink from cfg.
func NewSink(cfg Config) *Sink {
	return &Sink{cfg: cfg, now: time.Now}
}

// Record appends one timing line for a stage of a document page. Lines go
// to a per-day file so a day's processing can be reviewed in one place.
func (s *Sink) Record(document string, page int, stage string, d time.Duration) {
	if !s.cfg.LogTimings {
		return
	}
	s.append(fmt.Sprintf("%s_page%d | %s | %s", document, page, stage, d))
}

// RecordFailure appends a timing line marking a stage that errored.
func (s *Sink) RecordFailure(document string, page int, stage string, err error) {
	if !s.cfg.LogTimings {
		return
	}
	s.append(fmt.Sprintf("%s_page%d | %s | failed: %v", document, page, stage, err))
}

func (s *Sink) append(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := os.MkdirAll(s.cfg.TimingFolder, 0o755); err != nil {
		slog.Warn("cannot create timing folder", "folder", s.cfg.TimingFolder, "error", err)
		return
	}

	path := filepath.Join(s.cfg.TimingFolder, now.Format("2006-01-02")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("cannot open timing log", "path", path, "error", err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s\n", now.Format("2006-01-02 15:04:05"), entry)
	if _, err := f.WriteString(line); err != nil {
		slog.Warn("cannot write timing log", "path", path, "error", err)
	}
}

// SaveDebugImage writes a snapshot of a page after a stage ran. The file
// lands in the stage's subfolder as <document>_<stage>_page_<page>.png.
func (s *Sink) SaveDebugImage(img image.Image, document string, page int, stage string) {
	if !s.cfg.SaveImages || img == nil {
		return
	}

	folder := filepath.Join(s.cfg.BaseFolder, s.subfolder(stage))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		slog.Warn("cannot create debug folder", "folder", folder, "error", err)
		return
	}

	name := fmt.Sprintf("%s_%s_page_%d.png", document, stage, page)
	path := filepath.Join(folder, name)
	if err := imaging.Save(img, path); err != nil {
		slog.Warn("cannot save debug image", "path", path, "error", err)
	}
}

func (s *Sink) subfolder(stage string) string {
	if sub, ok := s.cfg.Subfolders[stage]; ok {
		return sub
	}
	return stage
}
