package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the minimum descriptor limit.
const MinFileDescriptors = 1024

// WatchFileDescriptors is the recommended limit when the storage watcher
// runs, since fsnotify holds one descriptor per watched directory on
// kqueue platforms.
const WatchFileDescriptors = 10240

// CheckFileDescriptors checks the open file limit.
func (c *Checker) CheckFileDescriptors(watching bool) CheckResult {
	result := CheckResult{Name: "file_descriptors", Required: true}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	current := rLimit.Cur
	result.Message = fmt.Sprintf("%d (minimum: %d)", current, MinFileDescriptors)
	switch {
	case current < MinFileDescriptors:
		result.Status = StatusFail
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' to increase the limit", WatchFileDescriptors)
	case watching && current < WatchFileDescriptors:
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("the watcher may need more; run 'ulimit -n %d'", WatchFileDescriptors)
	default:
		result.Status = StatusPass
	}
	return result
}
