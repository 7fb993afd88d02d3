package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{StablePolls: 2, PollInterval: 10 * time.Millisecond}
}

func TestWaitForStable_SettledFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("done"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, WaitForStable(ctx, path, 10*time.Millisecond, 2))
}

func TestWaitForStable_GrowingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	f, err := os.Create(path)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- WaitForStable(ctx, path, 10*time.Millisecond, 3)
	}()

	// Keep growing the file for a while, then stop.
	for range 5 {
		_, err := f.WriteString("chunk")
		require.NoError(t, err)
		time.Sleep(15 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	require.NoError(t, <-done)
}

func TestWaitForStable_MissingFile(t *testing.T) {
	ctx := context.Background()
	err := WaitForStable(ctx, filepath.Join(t.TempDir(), "gone.pdf"), time.Millisecond, 1)
	assert.Error(t, err)
}

func TestWaitForStable_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitForStable(ctx, path, time.Hour, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatch_AnnouncesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.pdf"), []byte("pdf"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan string, 4)
	w := New(dir, fastConfig())
	go w.Watch(ctx, out)

	select {
	case path := <-out:
		assert.Equal(t, filepath.Join(dir, "old.pdf"), path)
	case <-ctx.Done():
		t.Fatal("existing file was not announced")
	}
}

func TestWatch_AnnouncesNewFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan string, 4)
	w := New(dir, fastConfig())
	go w.Watch(ctx, out)

	// Give the watch loop a moment to register.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(dir, "incoming.tif")
	require.NoError(t, os.WriteFile(path, []byte("tif"), 0o644))

	select {
	case got := <-out:
		assert.Equal(t, path, got)
	case <-ctx.Done():
		t.Fatal("new file was not announced")
	}
}

func TestWatch_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan string, 4)
	w := New(dir, fastConfig())
	go w.Watch(ctx, out)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o644))

	select {
	case path := <-out:
		t.Fatalf("unexpected announcement for %s", path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope"), fastConfig())
	err := w.Watch(context.Background(), make(chan string, 1))
	assert.Error(t, err)
}
