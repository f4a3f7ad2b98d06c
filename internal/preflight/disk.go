package preflight

import (
	"fmt"
	"syscall"

	"github.com/Aman-CERP/amandrive/internal/output"
)

// MinDiskSpaceBytes is the minimum free space on the data directory's
// volume.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// WarnDiskSpaceBytes is the free space below which the check warns.
const WarnDiskSpaceBytes = 1024 * 1024 * 1024

// CheckDiskSpace checks the free space on the volume holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	available := int64(stat.Bavail) * int64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)",
		output.HumanBytes(available), output.HumanBytes(MinDiskSpaceBytes))
	switch {
	case available < MinDiskSpaceBytes:
		result.Status = StatusFail
	case available < WarnDiskSpaceBytes:
		result.Status = StatusWarn
		result.Details = "the index grows with the extracted text of every file"
	default:
		result.Status = StatusPass
	}
	return result
}
