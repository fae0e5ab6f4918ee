package suma

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
)

// DiskFreeFunc returns the free bytes of the filesystem holding path. Tests
// override it.
var DiskFreeFunc = func(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// CheckDiskSpace fails unless the filesystem holding dir has at least
// requiredGiB plus marginGiB free.
func CheckDiskSpace(dir string, requiredGiB, marginGiB float64) error {
	free, err := DiskFreeFunc(dir)
	if err != nil {
		return &PreflightError{
			Check:   "disk_space",
			Message: fmt.Sprintf("failed to check disk space on %s: %v", dir, err),
		}
	}

	need := uint64((requiredGiB + marginGiB) * bytesPerGiB)
	if free < need {
		return &PreflightError{
			Check: "disk_space",
			Message: fmt.Sprintf("insufficient disk space on %s: %s free, %s required",
				dir, humanize.IBytes(free), humanize.IBytes(need)),
		}
	}

	log.Debug("disk space preflight passed", "dir", dir, "free", humanize.IBytes(free), "required", humanize.IBytes(need))
	return nil
}
