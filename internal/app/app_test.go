package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepTempAudio(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	write := func(name string, mtime time.Time) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}

	stale := write("stale.wav", old)
	fresh := write("fresh.webm", now)
	other := write("notes.txt", old)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.wav"), 0755))

	removed := sweepTempAudio(dir, time.Hour, now)

	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
	assert.DirExists(t, filepath.Join(dir, "nested.wav"))
}

func TestSweepTempAudio_MissingDir(t *testing.T) {
	assert.Zero(t, sweepTempAudio(filepath.Join(t.TempDir(), "missing"), time.Hour, time.Now()))
}
