//go:build linux || darwin

package pipeline

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// peakRSSBytes returns the process's maximum resident set size, or 0 when
// the kernel does not report it.
func peakRSSBytes() int64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	// ru_maxrss is in kilobytes on Linux and in bytes on macOS.
	if runtime.GOOS == "darwin" {
		return int64(ru.Maxrss)
	}
	return int64(ru.Maxrss) * 1024
}
