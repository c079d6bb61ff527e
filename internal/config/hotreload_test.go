package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnFileWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("forge:\n  base_url: https://one.example.com\n"), 0644))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher time to register before writing, since fsnotify
	// watches the containing directory and needs the Add call to land.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("forge:\n  base_url: https://two.example.com\n"), 0644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "https://two.example.com", cfg.Forge.BaseURL)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hot reload")
	}
}

func TestWatcher_IgnoresUnrelatedFilesInSameDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("forge:\n  base_url: https://one.example.com\n"), 0644))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0644))

	select {
	case <-reloaded:
		t.Fatal("unrelated file write should not trigger a reload")
	case <-time.After(400 * time.Millisecond):
	}
}
