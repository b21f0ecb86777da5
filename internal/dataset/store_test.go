package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

var (
	fpX = types.FingerprintOf([]byte("X"))
	fpY = types.FingerprintOf([]byte("Y"))
	fpZ = types.FingerprintOf([]byte("Z"))
)

func rec(fp types.Fingerprint, path string) types.FileRecord {
	return types.FileRecord{Fingerprint: fp, RelativePath: path}
}

func seededStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), opts...)
	s.Reconcile([]types.FileRecord{rec(fpX, "a.wav"), rec(fpY, "b.wav")})
	return s
}

func TestReconcile_SeedsEmptyEntries(t *testing.T) {
	s := NewStore("/data")
	stats := s.Reconcile([]types.FileRecord{rec(fpX, "a.wav"), rec(fpY, "b.wav")})

	assert.Equal(t, ReconcileStats{Added: 2, Total: 2}, stats)
	assert.Equal(t, []types.Fingerprint{fpX, fpY}, s.Fingerprints())

	v, ok := s.Get(fpX)
	require.True(t, ok)
	assert.Equal(t, "a.wav", v.RelativePath)
	assert.False(t, v.IsCorrupted)
	assert.Empty(t, v.Labels)
}

// TestReconcile_RenameAndRemoval walks the rename-then-delete scenario
func TestReconcile_RenameAndRemoval(t *testing.T) {
	s := NewStore("/data")
	s.Reconcile([]types.FileRecord{rec(fpX, "a.wav"), rec(fpY, "b.wav")})

	intro := types.LabelSpan{Start: 0, End: 1000, Description: "intro"}
	require.NoError(t, s.AddLabel(fpX, 0, intro))

	stats := s.Reconcile([]types.FileRecord{rec(fpY, "b.wav"), rec(fpX, "nested/c.wav")})
	assert.Equal(t, 1, stats.Moved)

	v, ok := s.Get(fpX)
	require.True(t, ok)
	assert.Equal(t, "nested/c.wav", v.RelativePath)
	assert.False(t, v.IsCorrupted)
	assert.Equal(t, []types.LabelSpan{intro}, v.Labels)

	stats = s.Reconcile([]types.FileRecord{rec(fpX, "nested/c.wav")})
	assert.Equal(t, 1, stats.Corrupted)
	assert.Equal(t, 2, stats.Total)

	v, ok = s.Get(fpY)
	require.True(t, ok, "corrupted entries must stay in the store")
	assert.True(t, v.IsCorrupted)
	assert.Empty(t, v.Labels)

	v, _ = s.Get(fpX)
	assert.Equal(t, []types.LabelSpan{intro}, v.Labels)
}

// TestReconcile_NeverDropsLabels checks a deleted file keeps its label history
func TestReconcile_NeverDropsLabels(t *testing.T) {
	s := seededStore(t)
	labels := []types.LabelSpan{
		{Start: 0, End: 10, Description: "one"},
		{Start: 10, End: 20, Description: "two"},
		{Start: 20, End: 30, Description: "three"},
	}
	for _, l := range labels {
		require.NoError(t, s.AppendLabel(fpX, l))
	}

	s.Reconcile([]types.FileRecord{rec(fpY, "b.wav")})

	v, _ := s.Get(fpX)
	assert.True(t, v.IsCorrupted)
	assert.Equal(t, labels, v.Labels)
}

func TestReconcile_RestoresCorrupted(t *testing.T) {
	s := seededStore(t)
	s.Reconcile([]types.FileRecord{rec(fpX, "a.wav")})

	v, _ := s.Get(fpY)
	require.True(t, v.IsCorrupted)

	stats := s.Reconcile([]types.FileRecord{rec(fpX, "a.wav"), rec(fpY, "b.wav")})
	assert.Equal(t, 1, stats.Restored)

	v, _ = s.Get(fpY)
	assert.False(t, v.IsCorrupted)
}

// TestReconcile_Order keeps scan order first and missing entries after
func TestReconcile_Order(t *testing.T) {
	s := NewStore("/data")
	s.Reconcile([]types.FileRecord{rec(fpX, "x.wav"), rec(fpY, "y.wav"), rec(fpZ, "z.wav")})

	s.Reconcile([]types.FileRecord{rec(fpZ, "z.wav")})
	assert.Equal(t, []types.Fingerprint{fpZ, fpX, fpY}, s.Fingerprints())
}

func TestReconcile_IgnoresDuplicateRecords(t *testing.T) {
	s := NewStore("/data")
	stats := s.Reconcile([]types.FileRecord{rec(fpX, "a.wav"), rec(fpX, "copy.wav")})

	assert.Equal(t, 1, stats.Total)
	v, _ := s.Get(fpX)
	assert.Equal(t, "a.wav", v.RelativePath)
}

func TestAddLabel_Positions(t *testing.T) {
	s := seededStore(t)
	first := types.LabelSpan{Start: 0, End: 1, Description: "first"}
	second := types.LabelSpan{Start: 1, End: 2, Description: "second"}
	third := types.LabelSpan{Start: 2, End: 3, Description: "third"}

	require.NoError(t, s.AddLabel(fpX, 0, first))
	require.NoError(t, s.AddLabel(fpX, 0, second))
	require.NoError(t, s.AddLabel(fpX, 2, third))

	v, _ := s.Get(fpX)
	assert.Equal(t, []types.LabelSpan{second, first, third}, v.Labels)
}

func TestLabelOperations_Errors(t *testing.T) {
	s := seededStore(t)
	span := types.LabelSpan{Start: 0, End: 100, Description: "x"}
	require.NoError(t, s.AppendLabel(fpX, span))

	tests := []struct {
		name string
		op   func() error
		kind error
	}{
		{"add unknown fingerprint", func() error { return s.AddLabel(fpZ, 0, span) }, types.ErrNotFound},
		{"add out of range", func() error { return s.AddLabel(fpX, 5, span) }, types.ErrInvalidArgument},
		{"add negative", func() error { return s.AddLabel(fpX, -1, span) }, types.ErrInvalidArgument},
		{"add invalid span", func() error {
			return s.AddLabel(fpX, 0, types.LabelSpan{Start: 10, End: 5})
		}, types.ErrInvalidArgument},
		{"update unknown fingerprint", func() error { return s.UpdateLabel(fpZ, 0, span) }, types.ErrNotFound},
		{"update out of range", func() error { return s.UpdateLabel(fpX, 1, span) }, types.ErrInvalidArgument},
		{"delete out of range", func() error { return s.DeleteLabel(fpX, 1) }, types.ErrInvalidArgument},
		{"delete on empty entry", func() error { return s.DeleteLabel(fpY, 0) }, types.ErrInvalidArgument},
		{"delete unknown fingerprint", func() error { return s.DeleteLabel(fpZ, 0) }, types.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	v, _ := s.Get(fpX)
	assert.Equal(t, []types.LabelSpan{span}, v.Labels, "failed operations must not modify labels")
}

func TestUpdateAndDeleteLabel(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.AppendLabel(fpX, types.LabelSpan{Start: 0, End: 1, Description: "a"}))
	require.NoError(t, s.AppendLabel(fpX, types.LabelSpan{Start: 1, End: 2, Description: "b"}))

	updated := types.LabelSpan{Start: 5, End: 9, Description: "b2"}
	require.NoError(t, s.UpdateLabel(fpX, 1, updated))
	require.NoError(t, s.DeleteLabel(fpX, 0))

	v, _ := s.Get(fpX)
	assert.Equal(t, []types.LabelSpan{updated}, v.Labels)
}

// TestSpanValidator verifies the minimum duration is enforced at the store boundary
func TestSpanValidator(t *testing.T) {
	minDuration := 500.0
	s := seededStore(t, WithSpanValidator(func(span types.LabelSpan) error {
		return span.Validate(minDuration)
	}))

	err := s.AppendLabel(fpX, types.LabelSpan{Start: 0, End: 100})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	require.NoError(t, s.AppendLabel(fpX, types.LabelSpan{Start: 0, End: 600}))

	err = s.UpdateLabel(fpX, 0, types.LabelSpan{Start: 0, End: 499})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	minDuration = 0
	assert.NoError(t, s.UpdateLabel(fpX, 0, types.LabelSpan{Start: 0, End: 1}))
}

func TestViewsAreSnapshots(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.AppendLabel(fpX, types.LabelSpan{Start: 0, End: 1, Description: "a"}))

	v, _ := s.Get(fpX)
	v.Labels[0].Description = "mutated"
	v.RelativePath = "elsewhere.wav"

	fresh, _ := s.Get(fpX)
	assert.Equal(t, "a", fresh.Labels[0].Description)
	assert.Equal(t, "a.wav", fresh.RelativePath)
}

func TestFilter(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.AppendLabel(fpY, types.LabelSpan{Start: 0, End: 1}))

	unlabeled := s.Filter(func(v View) bool { return v.LabelCount() == 0 })
	require.Len(t, unlabeled, 1)
	assert.Equal(t, fpX, unlabeled[0].Fingerprint)

	assert.Len(t, s.Views(), 2)
}

func TestAbsolutePath(t *testing.T) {
	s := NewStore("/data/set")
	s.Reconcile([]types.FileRecord{rec(fpX, "nested/c.wav")})

	path, err := s.AbsolutePath(fpX)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/set", "nested", "c.wav"), path)

	_, err = s.AbsolutePath(fpY)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestRefreshOne checks the cheap existence check flips the corruption flag
func TestRefreshOne(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.wav")
	require.NoError(t, os.WriteFile(file, []byte("X"), 0644))

	s := NewStore(root)
	s.Reconcile([]types.FileRecord{rec(fpX, "a.wav")})

	corrupted, err := s.RefreshOne(fpX)
	require.NoError(t, err)
	assert.False(t, corrupted)

	require.NoError(t, os.Remove(file))
	corrupted, err = s.RefreshOne(fpX)
	require.NoError(t, err)
	assert.True(t, corrupted)

	v, _ := s.Get(fpX)
	assert.True(t, v.IsCorrupted)

	require.NoError(t, os.WriteFile(file, []byte("X"), 0644))
	corrupted, err = s.RefreshOne(fpX)
	require.NoError(t, err)
	assert.False(t, corrupted)

	_, err = s.RefreshOne(fpZ)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestRecordsRestoreRoundTrip(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.AppendLabel(fpX, types.LabelSpan{Start: 0, End: 10, Description: "a"}))
	s.Reconcile([]types.FileRecord{rec(fpX, "a.wav")})

	records := s.Records()

	restored := NewStore(s.Root())
	require.NoError(t, restored.Restore(records))

	assert.Equal(t, s.Views(), restored.Views())

	// Records are deep copies
	records[0].Entry.Labels[0].Description = "changed"
	v, _ := restored.Get(fpX)
	assert.Equal(t, "a", v.Labels[0].Description)
}

func TestRestore_RejectsDuplicates(t *testing.T) {
	s := NewStore("/data")
	err := s.Restore([]Record{
		{Fingerprint: fpX, Entry: Entry{RelativePath: "a.wav"}},
		{Fingerprint: fpX, Entry: Entry{RelativePath: "b.wav"}},
	})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
