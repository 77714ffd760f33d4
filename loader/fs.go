package loader

import (
	"io"
	"os"
)

// File is an open resource file. Reads go through io.ReaderAt so a worker
// can fill a buffer without seeking shared state.
type File interface {
	io.ReaderAt
	io.Closer
	Stat() (os.FileInfo, error)
}

// FileSystem abstracts file access for testability.
type FileSystem interface {
	Open(name string) (File, error)
}

// LocalFS implements FileSystem using the local os package.
type LocalFS struct{}

func (LocalFS) Open(name string) (File, error) {
	return os.Open(name)
}

// DefaultFS is the default local file system.
var DefaultFS FileSystem = LocalFS{}
