package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/index"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.Root = t.TempDir()
	cfg.Storage.DataDir = t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cfg.Storage.Root, "u1"), 0o755))
	return cfg
}

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
	assert.Equal(t, "UNKNOWN", CheckStatus(9).String())
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestCheckResult_JSONStatusName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn})

	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestRunAll_HealthyHost(t *testing.T) {
	// Given: an existing root with one owner and a writable data dir
	cfg := testConfig(t)
	c := New(WithOutput(&bytes.Buffer{}))

	// When: running every check
	results := c.RunAll(context.Background(), cfg)

	// Then: nothing critical fails
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"storage_root", "write_permissions", "disk_space", "file_descriptors", "index_lock"}, names)
	assert.False(t, c.HasCriticalFailures(results))
	assert.NotEqual(t, "failed", c.SummaryStatus(results))
}

func TestCheckStorageRoot(t *testing.T) {
	c := New()

	// Missing root fails.
	r := c.CheckStorageRoot(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, StatusFail, r.Status)

	// A file is not a root.
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Equal(t, StatusFail, c.CheckStorageRoot(file).Status)

	// An empty root only warns.
	assert.Equal(t, StatusWarn, c.CheckStorageRoot(t.TempDir()).Status)
}

func TestCheckWritePermissions_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	r := New().CheckWritePermissions(dir)

	assert.Equal(t, StatusPass, r.Status)
	assert.DirExists(t, dir)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "test write file must be removed")
}

func TestCheckIndexLock_HeldByAnotherHolder(t *testing.T) {
	// Given: the index lock held elsewhere
	path := filepath.Join(t.TempDir(), "index.bleve")
	held := index.NewDirLock(path)
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = held.Unlock() })

	// When: checking the lock
	r := New().CheckIndexLock(path)

	// Then: the check fails critically
	assert.True(t, r.IsCritical())
}

func TestCheckIndexLock_Free(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bleve")

	r := New().CheckIndexLock(path)

	assert.Equal(t, StatusPass, r.Status)
	// The check releases the lock again.
	again := index.NewDirLock(path)
	ok, err := again.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	_ = again.Unlock()
}

func TestCheckFileDescriptors(t *testing.T) {
	r := New().CheckFileDescriptors(false)

	assert.NotEqual(t, "", r.Message)
	assert.Contains(t, []CheckStatus{StatusPass, StatusFail}, r.Status)
}

func TestSummaryStatus(t *testing.T) {
	c := New()

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{{Status: StatusPass, Required: true}}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{
		{Status: StatusPass, Required: true},
		{Status: StatusWarn, Required: true},
	}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{
		{Status: StatusWarn, Required: true},
		{Status: StatusFail, Required: true},
	}))
}

func TestPrintResults(t *testing.T) {
	buf := &bytes.Buffer{}
	c := New(WithOutput(buf))

	c.PrintResults([]CheckResult{
		{Name: "disk_space", Status: StatusWarn, Message: "900 MiB free", Details: "low", Required: true},
		{Name: "index_lock", Status: StatusPass, Message: "OK", Details: "hidden", Required: true},
	})

	out := buf.String()
	assert.Contains(t, out, "[WARN] disk_space: 900 MiB free")
	assert.Contains(t, out, "low")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
}
