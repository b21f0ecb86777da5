package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/audiomark-mcp/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDebounce = 100 * time.Millisecond

// startWatcher returns a channel that receives every delivered batch
func startWatcher(t *testing.T, root string) (*Watcher, <-chan []string) {
	t.Helper()
	batches := make(chan []string, 16)
	w, err := New(root, func(_ context.Context, paths []string) {
		batches <- paths
	}, &Options{Debounce: testDebounce, Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w, batches
}

func waitBatch(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case paths := <-batches:
		return paths
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
		return nil
	}
}

func assertQuiet(t *testing.T, batches <-chan []string) {
	t.Helper()
	select {
	case paths := <-batches:
		t.Fatalf("unexpected change delivered: %v", paths)
	case <-time.After(5 * testDebounce):
	}
}

func TestWatcher_DebouncesAudioChanges(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root)

	for _, name := range []string{"a.wav", "b.wav", "c.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0o644))
	}

	paths := waitBatch(t, batches)
	assert.Equal(t, []string{
		filepath.Join(root, "a.wav"),
		filepath.Join(root, "b.wav"),
		filepath.Join(root, "c.mp3"),
	}, paths)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".session.mmp.123.tmp"), []byte("x"), 0o644))
	assertQuiet(t, batches)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root)

	nested := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(nested, 0o755))
	assert.Equal(t, []string{nested}, waitBatch(t, batches))

	require.NoError(t, os.WriteFile(filepath.Join(nested, "d.flac"), []byte("d"), 0o644))
	assert.Contains(t, waitBatch(t, batches), filepath.Join(nested, "d.flac"))
}

func TestWatcher_WatchesHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	hiddenDir := filepath.Join(root, ".takes")
	require.NoError(t, os.Mkdir(hiddenDir, 0o755))
	_, batches := startWatcher(t, root)

	path := filepath.Join(hiddenDir, "take1.wav")
	require.NoError(t, os.WriteFile(path, []byte("t"), 0o644))
	assert.Equal(t, []string{path}, waitBatch(t, batches))

	require.NoError(t, os.WriteFile(filepath.Join(hiddenDir, ".markup-1.tmp"), []byte("x"), 0o644))
	assertQuiet(t, batches)
}

func TestWatcher_ReportsRemoval(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, batches := startWatcher(t, root)

	require.NoError(t, os.Remove(path))
	assert.Equal(t, []string{path}, waitBatch(t, batches))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w, _ := startWatcher(t, root)

	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcher_ContextCancelEndsLoop(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	w, err := New(root, func(context.Context, []string) {}, &Options{Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	cancel()
	require.NoError(t, w.Stop())
}

func TestNew_Validation(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.wav")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	handler := func(context.Context, []string) {}

	_, err := New(root, nil, nil)
	assert.Error(t, err)
	_, err = New(filepath.Join(root, "missing"), handler, nil)
	assert.Error(t, err)
	_, err = New(file, handler, nil)
	assert.Error(t, err)

	w, err := New(root, handler, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounce)
}
