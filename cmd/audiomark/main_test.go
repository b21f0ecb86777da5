package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	cmd := rootCommand(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
	return out.String(), err
}

func TestCommands(t *testing.T) {
	work := t.TempDir()
	t.Chdir(work)
	t.Setenv("XDG_CONFIG_HOME", work)
	t.Setenv("HOME", work)

	dataset := filepath.Join(work, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(dataset, "kicks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataset, "kicks", "k1.wav"), []byte("k1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataset, "snare.flac"), []byte("s1"), 0o644))

	out, err := run(t, "init", "drums", dataset, "-d", "one shots", "-o", work)
	require.NoError(t, err)
	assert.Contains(t, out, "with 2 entries")
	projectFile := filepath.Join(work, "drums.mmp")
	require.FileExists(t, projectFile)

	out, err = run(t, "status", projectFile)
	require.NoError(t, err)
	assert.Contains(t, out, "drums")
	assert.Contains(t, out, "one shots")
	assert.Contains(t, out, "2 (0 labeled, 0 corrupted)")

	require.NoError(t, os.Remove(filepath.Join(dataset, "snare.flac")))
	out, err = run(t, "scan", projectFile)
	require.NoError(t, err)
	assert.Contains(t, out, "1 corrupted")

	out, err = run(t, "export", projectFile, work)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 0 labels")
	assert.FileExists(t, filepath.Join(work, "drums.csv"))

	_, err = run(t, "status", filepath.Join(work, "missing.mmp"))
	assert.Error(t, err)
	_, err = run(t, "init", "drums", filepath.Join(work, "nowhere"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
	assert.Contains(t, out, "SQLite Driver:")
}
