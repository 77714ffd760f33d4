package loader

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Fault defines failure behavior for matching files.
type Fault struct {
	FailOnOpen     bool
	FailAfterBytes int64 // fail ReadAt past this many bytes read from the file; -1 disables
	Err            error
}

// FaultyFS is a FileSystem wrapper that injects read errors. It exists for
// tests that need deterministic I/O failures.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS creates a FaultyFS wrapping fs (or DefaultFS if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = DefaultFS
	}
	return &FaultyFS{
		FS:    fs,
		rules: make(map[string]Fault),
	}
}

// AddRule injects fault behavior for files whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = fmt.Errorf("injected fault error")
	}
	f.rules[pattern] = fault
}

func (f *FaultyFS) Open(name string) (File, error) {
	f.mu.Lock()
	fault, matched := Fault{FailAfterBytes: -1}, false
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault, matched = rule, true
		}
	}
	f.mu.Unlock()

	if matched && fault.FailOnOpen {
		return nil, fault.Err
	}

	file, err := f.FS.Open(name)
	if err != nil {
		return nil, err
	}
	if !matched {
		return file, nil
	}
	return &faultyFile{File: file, fault: fault}, nil
}

type faultyFile struct {
	File
	fault Fault
	read  int64
}

func (f *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if f.fault.FailAfterBytes >= 0 && f.read >= f.fault.FailAfterBytes {
		return 0, f.fault.Err
	}
	n, err := f.File.ReadAt(p, off)
	f.read += int64(n)
	if err == nil && f.fault.FailAfterBytes >= 0 && f.read > f.fault.FailAfterBytes {
		// Report a short read at the fault boundary.
		over := f.read - f.fault.FailAfterBytes
		f.read = f.fault.FailAfterBytes
		return n - int(over), f.fault.Err
	}
	return n, err
}

func (f *faultyFile) Stat() (os.FileInfo, error) {
	return f.File.Stat()
}
