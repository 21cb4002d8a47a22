package manager

import (
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/dccbot/dccagent/internal/config"
)

// diskHasFreeSpace refuses a new transfer when the download volume's free
// space is below either the declared file size or the configured minimum.
// The declared-size check always applies; the configured minimum applies only
// when the guard is enabled. A failed free-space lookup fails open.
func diskHasFreeSpace(downloadDir string, size int64, guard config.DiskFreeGuard) bool {
	usage, err := disk.Usage(downloadDir)
	if err != nil {
		return true
	}

	if int64(usage.Free) < size {
		return false
	}

	if guard.Enabled && guard.MinFreeMiB > 0 {
		minFree := guard.MinFreeMiB * 1024 * 1024
		if int64(usage.Free) < minFree {
			return false
		}
	}

	return true
}
