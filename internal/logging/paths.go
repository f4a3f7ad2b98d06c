package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFileName is the name of the server log inside the log directory.
const LogFileName = "amandrive.log"

// LogDir returns the log directory for a data directory (<data_dir>/logs).
// An empty data directory falls back to the temp directory.
func LogDir(dataDir string) string {
	if dataDir == "" {
		return filepath.Join(os.TempDir(), "amandrive", "logs")
	}
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the server log path for a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), LogFileName)
}

// EnsureDir creates the directory holding path if it does not exist.
func EnsureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}
