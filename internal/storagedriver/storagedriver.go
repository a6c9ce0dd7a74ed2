// Package storagedriver defines the byte-addressable backend interface
// the storage engine writes through, modelled on the teacher's
// StorageDriver interface (formerly storagedriver/storagedriver.go,
// since superseded in the teacher's own tree by registry/storage/driver
// — the same concept, re-grounded here for the filesystem-only scope
// this spec requires).
package storagedriver

import (
	"io"
	"time"
)

// StorageDriver is a filesystem-like key/value object store.
type StorageDriver interface {
	// GetContent retrieves the content stored at path.
	GetContent(path string) ([]byte, error)

	// PutContent stores content at path, replacing anything already there.
	PutContent(path string, content []byte) error

	// Reader opens the content at path for reading, starting at offset.
	Reader(path string, offset int64) (io.ReadCloser, error)

	// Writer opens path for writing. If append is true, writes go after
	// any existing content; otherwise existing content is truncated.
	Writer(path string, append bool) (io.WriteCloser, error)

	// Stat returns FileInfo for path.
	Stat(path string) (FileInfo, error)

	// List returns the direct descendants of path.
	List(path string) ([]string, error)

	// Move renames sourcePath to destPath. If destPath already exists it
	// is kept and sourcePath is removed instead (content-store dedup).
	// Implementations MUST make this atomic where the underlying
	// filesystem supports it (spec §4.4 commit invariant).
	Move(sourcePath, destPath string) error

	// Delete recursively removes path and its subpaths.
	Delete(path string) error
}

// FileInfo is the subset of os.FileInfo the storage engine needs.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}
