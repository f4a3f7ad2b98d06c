package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/index"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the status as its name.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(s.String()))
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check for cfg.
func (c *Checker) RunAll(_ context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{
		c.CheckStorageRoot(cfg.Storage.Root),
		c.CheckWritePermissions(cfg.Storage.DataDir),
		c.CheckDiskSpace(cfg.Storage.DataDir),
		c.CheckFileDescriptors(cfg.Watch.Enabled),
		c.CheckIndexLock(cfg.IndexPath()),
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "amandrive system check")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckStorageRoot checks that root is a readable directory.
func (c *Checker) CheckStorageRoot(root string) CheckResult {
	result := CheckResult{Name: "storage_root", Required: true}

	info, err := os.Stat(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot access %s", root)
		result.Details = err.Error()
		return result
	}
	if !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", root)
		return result
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot list %s", root)
		result.Details = err.Error()
		return result
	}

	owners := 0
	for _, e := range entries {
		if e.IsDir() {
			owners++
		}
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d owner directories)", root, owners)
	if owners == 0 {
		result.Status = StatusWarn
		result.Details = "files are expected under <root>/<owner>/"
	}
	return result
}

// CheckWritePermissions checks that dataDir can be created and written.
func (c *Checker) CheckWritePermissions(dataDir string) CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s", dataDir)
		result.Details = err.Error()
		return result
	}
	f, err := os.CreateTemp(dataDir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckIndexLock checks that no other process holds the index at path.
func (c *Checker) CheckIndexLock(path string) CheckResult {
	result := CheckResult{Name: "index_lock", Required: true}

	lock := index.NewDirLock(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	acquired, err := lock.TryLock()
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if !acquired {
		result.Status = StatusFail
		result.Message = "index is in use by another process"
		result.Details = "Stop the running amandrive server or point data_dir elsewhere"
		return result
	}
	_ = lock.Unlock()

	result.Status = StatusPass
	result.Message = "OK"
	return result
}
