package preflight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile records in the data directory that the checks passed.
const MarkerFile = ".preflight-passed"

// MarkerMaxAge is how long a pass is trusted before serve checks again.
const MarkerMaxAge = 7 * 24 * time.Hour

type marker struct {
	Root     string    `json:"root"`
	PassedAt time.Time `json:"passed_at"`
}

func readMarker(dataDir string) (marker, bool) {
	var m marker
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return m, false
	}
	if err := json.Unmarshal(data, &m); err != nil || m.PassedAt.IsZero() {
		return m, false
	}
	return m, true
}

// NeedsCheck reports whether the checks must run before serving root from
// dataDir: there is no pass on record, the pass was for another storage
// root, or it is older than MarkerMaxAge.
func NeedsCheck(dataDir, root string) bool {
	m, ok := readMarker(dataDir)
	if !ok || m.Root != filepath.Clean(root) {
		return true
	}
	return time.Since(m.PassedAt) > MarkerMaxAge
}

// MarkPassed records a pass for root.
func MarkPassed(dataDir, root string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := json.Marshal(marker{Root: filepath.Clean(root), PassedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0o644)
}

// ClearMarker removes the marker, forcing a check on the next start.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the checks passed, or zero without a
// readable marker.
func MarkerAge(dataDir string) time.Duration {
	m, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(m.PassedAt)
}
