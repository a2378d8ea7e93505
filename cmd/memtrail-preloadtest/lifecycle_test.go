package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/fjose/memtrail-go/internal/lifecycle"
)

// TestLifecycleInitCreatesOutputFile drives the real internal/lifecycle
// wiring (compressor child, writer, resolver, tracer, computed limit)
// over the harness's fake host, and watches the destination directory
// with fsnotify to observe Init truncate-creating memtrail.data, as
// the constructor of a real preloaded process does, without polling
// the filesystem.
func TestLifecycleInitCreatesOutputFile(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "memtrail.data")

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Add(dir))

	l, err := lifecycle.Init(newFakeHost(), outPath)
	require.NoError(t, err)
	require.NotNil(t, l.Tracer)
	require.NotNil(t, l.Resolver)

	select {
	case ev := <-watcher.Events:
		require.Equal(t, outPath, ev.Name)
		require.True(t, ev.Op&fsnotify.Create == fsnotify.Create)
	case err := <-watcher.Errors:
		t.Fatalf("watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for memtrail.data to be created")
	}

	_, err = os.Stat(outPath)
	require.NoError(t, err)
}

// TestComputeLimitPrefersOverride exercises the MEMTRAIL_LIMIT test
// override path, which lets a limit-exceeded scenario run without
// allocating half of physical RAM.
func TestComputeLimitPrefersOverride(t *testing.T) {
	t.Setenv("MEMTRAIL_LIMIT", "4096")
	require.Equal(t, int64(4096), lifecycle.ComputeLimit())
}
