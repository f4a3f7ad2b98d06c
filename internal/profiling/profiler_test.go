package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_AllProfiles(t *testing.T) {
	// Given: every profile requested
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Trace: filepath.Join(dir, "trace.out"),
		Heap:  filepath.Join(dir, "heap.prof"),
	}
	require.True(t, opts.Enabled())

	// When: running some work inside a session
	s, err := Start(opts)
	require.NoError(t, err)
	sum := 0
	for i := 0; i < 1000000; i++ {
		sum += i
	}
	_ = sum
	require.NoError(t, s.Stop())

	// Then: every file has content, and a second Stop is harmless
	nonEmpty(t, opts.CPU)
	nonEmpty(t, opts.Trace)
	nonEmpty(t, opts.Heap)
	assert.NoError(t, s.Stop())
}

func TestSession_NothingRequested(t *testing.T) {
	assert.False(t, Options{}.Enabled())

	s, err := Start(Options{})
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}

func TestStart_BadPath(t *testing.T) {
	_, err := Start(Options{CPU: filepath.Join(t.TempDir(), "missing", "cpu.prof")})

	assert.Error(t, err)
}

func TestWriteProfile(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"heap", "allocs", "goroutine", "block"} {
		path := filepath.Join(dir, name+".prof")
		require.NoError(t, WriteProfile(name, path), name)
		assert.FileExists(t, path)
	}
	assert.Error(t, WriteProfile("nope", filepath.Join(dir, "x")))
}
