//go:build !windows

package vmem

import (
	"os"

	"golang.org/x/sys/unix"
)

func osGranularity() int {
	return os.Getpagesize()
}

func osReserve(size int) ([]byte, error) {
	// PROT_NONE keeps the range inaccessible until committed; MAP_NORESERVE
	// avoids charging swap for the full reservation up front.
	return unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
}

func osCommit(mem []byte) error {
	return unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE)
}

func osDecommit(mem []byte) error {
	if err := unix.Mprotect(mem, unix.PROT_NONE); err != nil {
		return err
	}
	// MADV_DONTNEED drops the pages now, so a later commit observes zeroed
	// memory instead of stale contents.
	if err := unix.Madvise(mem, unix.MADV_DONTNEED); err != nil && err != unix.EINVAL {
		return err
	}
	return nil
}

func osRelease(mem []byte) error {
	return unix.Munmap(mem)
}
