package indexer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

// createTestFile creates a file with the given content below dir
func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, filepath.FromSlash(name))
	err := os.MkdirAll(filepath.Dir(filePath), 0755)
	require.NoError(t, err)

	err = os.WriteFile(filePath, []byte(content), 0644)
	require.NoError(t, err)

	return filePath
}

func paths(result *ScanResult) []string {
	out := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		out = append(out, f.RelativePath)
	}
	return out
}

// TestNew verifies scanner initialization
func TestNew(t *testing.T) {
	s := New(nil)
	assert.Equal(t, runtime.NumCPU(), s.workers)
	assert.NotNil(t, s.logger)

	s = New(&Config{Workers: 3})
	assert.Equal(t, 3, s.workers)
}

func TestNormalizeSuffixes(t *testing.T) {
	set := NormalizeSuffixes([]string{"WAV", ".Mp3", " flac ", ""})

	assert.Len(t, set, 3)
	assert.Contains(t, set, ".wav")
	assert.Contains(t, set, ".mp3")
	assert.Contains(t, set, ".flac")
}

// TestScan_FiltersBySuffix checks case-insensitive extension matching
func TestScan_FiltersBySuffix(t *testing.T) {
	tmpDir := t.TempDir()

	createTestFile(t, tmpDir, "a.wav", "aaa")
	createTestFile(t, tmpDir, "B.WAV", "bbb")
	createTestFile(t, tmpDir, "notes.txt", "ignored")
	createTestFile(t, tmpDir, "deep/nested/c.mid", "ccc")

	result, err := New(nil).Scan(context.Background(), tmpDir, DefaultSuffixes)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.wav", "B.WAV", "deep/nested/c.mid"}, paths(result))
	assert.Equal(t, 3, result.Stats.FilesScanned)
	assert.Equal(t, 0, result.Stats.FilesSkipped)
}

// TestScan_FingerprintIsContentDigest checks the key is the MD5 of the bytes
func TestScan_FingerprintIsContentDigest(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.wav", "X")

	result, err := New(nil).Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())

	want := types.FingerprintOf([]byte("X"))
	assert.Equal(t, want, result.Files[0].Fingerprint)

	rel, ok := result.Lookup(want)
	assert.True(t, ok)
	assert.Equal(t, "a.wav", rel)
}

// TestScan_Idempotent verifies two scans of an unchanged tree agree exactly
func TestScan_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	for i, name := range []string{"z.wav", "a.wav", "m/b.flac", "m/a.flac", "q.ogg"} {
		createTestFile(t, tmpDir, name, name+string(rune('a'+i)))
	}

	scanner := New(&Config{Workers: 2})
	first, err := scanner.Scan(context.Background(), tmpDir, DefaultSuffixes)
	require.NoError(t, err)
	second, err := scanner.Scan(context.Background(), tmpDir, DefaultSuffixes)
	require.NoError(t, err)

	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, first.TreeDigest, second.TreeDigest)
}

// TestScan_TraversalOrder verifies results follow lexical walk order regardless of workers
func TestScan_TraversalOrder(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "b.wav", "1")
	createTestFile(t, tmpDir, "a.wav", "2")
	createTestFile(t, tmpDir, "a/z.wav", "3")
	createTestFile(t, tmpDir, "c.wav", "4")

	result, err := New(&Config{Workers: 8}).Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a/z.wav", "a.wav", "b.wav", "c.wav"}, paths(result))
}

// TestScan_RenameKeepsFingerprint checks that moving a file keeps its identity
func TestScan_RenameKeepsFingerprint(t *testing.T) {
	tmpDir := t.TempDir()
	original := createTestFile(t, tmpDir, "a.wav", "payload")

	scanner := New(nil)
	before, err := scanner.Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "nested"), 0755))
	require.NoError(t, os.Rename(original, filepath.Join(tmpDir, "nested", "c.wav")))

	after, err := scanner.Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)

	require.Equal(t, 1, after.Len())
	assert.Equal(t, before.Files[0].Fingerprint, after.Files[0].Fingerprint)
	assert.Equal(t, "nested/c.wav", after.Files[0].RelativePath)
	assert.NotEqual(t, before.TreeDigest, after.TreeDigest, "path change must change the tree digest")
}

// TestScan_Duplicates verifies identical content collapses to the first path
func TestScan_Duplicates(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.wav", "same")
	createTestFile(t, tmpDir, "b.wav", "same")

	result, err := New(nil).Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)

	require.Equal(t, 1, result.Len())
	assert.Equal(t, "a.wav", result.Files[0].RelativePath)
	require.Len(t, result.Duplicates, 1)
	assert.Equal(t, "b.wav", result.Duplicates[0].RelativePath)
	assert.Equal(t, "a.wav", result.Duplicates[0].KeptPath)
	assert.Equal(t, 1, result.Stats.Duplicates)
}

// TestScan_ContentChangeChangesDigest checks the tree digest tracks content
func TestScan_ContentChangeChangesDigest(t *testing.T) {
	tmpDir := t.TempDir()
	file := createTestFile(t, tmpDir, "a.wav", "v1")

	scanner := New(nil)
	before, err := scanner.Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(file, []byte("v2"), 0644))
	after, err := scanner.Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)

	assert.NotEqual(t, before.TreeDigest, after.TreeDigest)
	assert.NotEqual(t, before.Files[0].Fingerprint, after.Files[0].Fingerprint)
}

// TestScan_UnreadableFileSkipped verifies the skip-with-warning policy
func TestScan_UnreadableFileSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "ok.wav", "fine")
	locked := createTestFile(t, tmpDir, "locked.wav", "secret")
	require.NoError(t, os.Chmod(locked, 0000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0644) })

	result, err := New(nil).Scan(context.Background(), tmpDir, []string{".wav"})
	require.NoError(t, err)

	assert.Equal(t, []string{"ok.wav"}, paths(result))
	assert.Equal(t, 1, result.Stats.FilesSkipped)
	require.Len(t, result.Stats.ErrorMessages, 1)
	assert.Contains(t, result.Stats.ErrorMessages[0], "locked.wav")
}

func TestScan_InvalidRoot(t *testing.T) {
	tmpDir := t.TempDir()
	file := createTestFile(t, tmpDir, "a.wav", "x")

	tests := []struct {
		name string
		root string
	}{
		{"missing", filepath.Join(tmpDir, "does-not-exist")},
		{"file", file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Scan(context.Background(), tt.root, DefaultSuffixes)
			assert.ErrorIs(t, err, types.ErrInvalidArgument)
		})
	}
}

func TestScan_EmptySuffixes(t *testing.T) {
	_, err := New(nil).Scan(context.Background(), t.TempDir(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestScan_ContextCanceled(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.wav", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Scan(ctx, tmpDir, DefaultSuffixes)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_EmptyDirectory(t *testing.T) {
	result, err := New(nil).Scan(context.Background(), t.TempDir(), DefaultSuffixes)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
	assert.NotEmpty(t, result.TreeDigest)
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock

	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire())
	assert.True(t, lock.Held())
	assert.False(t, lock.TryAcquire(), "second acquire must fail")

	lock.Release()
	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire())
}
