//go:build windows

package vmem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func osGranularity() int {
	// Commit and decommit operate on pages; only the reservation base is
	// subject to the coarser 64 KiB allocation granularity, which
	// VirtualAlloc handles itself.
	return os.Getpagesize()
}

func osReserve(size int) ([]byte, error) {
	base, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size), nil
}

func osCommit(mem []byte) error {
	_, err := windows.VirtualAlloc(uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)), windows.MEM_COMMIT, windows.PAGE_READWRITE)
	return err
}

func osDecommit(mem []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)), windows.MEM_DECOMMIT)
}

func osRelease(mem []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(&mem[0])), 0, windows.MEM_RELEASE)
}
