// Package filesystem implements storagedriver.StorageDriver over a
// local directory tree, adapted from
// registry/storage/driver/filesystem/driver.go's temp-file-then-rename
// write path and directory-walk List/Move semantics.
package filesystem

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/storagedriver"
)

// Driver stores all paths as subpaths of RootDirectory.
type Driver struct {
	RootDirectory string
}

// New returns a Driver rooted at root, creating it if necessary.
func New(root string) (*Driver, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "creating root directory").WithDetail(root)
	}
	return &Driver{RootDirectory: root}, nil
}

func (d *Driver) fullPath(path string) string {
	return filepath.Join(d.RootDirectory, filepath.FromSlash(path))
}

func (d *Driver) GetContent(path string) ([]byte, error) {
	data, err := os.ReadFile(d.fullPath(path))
	if err != nil {
		return nil, wrapIOErr(err, path)
	}
	return data, nil
}

func (d *Driver) PutContent(path string, content []byte) error {
	full := d.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating parent directory").WithDetail(path)
	}

	// write-temp-then-rename, mirroring the filesystem driver's atomic
	// write path and the spec §4.4/§5 requirement that readers never
	// observe a partially written file.
	tmp := full + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "writing temp file").WithDetail(path)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return ipserr.Wrap(ipserr.KindIO, err, "renaming into place").WithDetail(path)
	}
	return nil
}

func (d *Driver) Reader(path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(d.fullPath(path))
	if err != nil {
		return nil, wrapIOErr(err, path)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, ipserr.Wrap(ipserr.KindIO, err, "seeking").WithDetail(path)
		}
	}
	return f, nil
}

func (d *Driver) Writer(path string, appendMode bool) (io.WriteCloser, error) {
	full := d.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "creating parent directory").WithDetail(path)
	}
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, wrapIOErr(err, path)
	}
	return f, nil
}

func (d *Driver) Stat(path string) (storagedriver.FileInfo, error) {
	fi, err := os.Stat(d.fullPath(path))
	if err != nil {
		return storagedriver.FileInfo{}, wrapIOErr(err, path)
	}
	return storagedriver.FileInfo{
		Path:    path,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}, nil
}

func (d *Driver) List(path string) ([]string, error) {
	entries, err := os.ReadDir(d.fullPath(path))
	if err != nil {
		return nil, wrapIOErr(err, path)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.ToSlash(filepath.Join(path, e.Name())))
	}
	return out, nil
}

// Move renames sourcePath to destPath. If destPath already exists, the
// source is discarded instead of overwriting — the storage engine
// relies on this for blob-store dedup (spec §4.4 commit step a).
func (d *Driver) Move(sourcePath, destPath string) error {
	src := d.fullPath(sourcePath)
	dst := d.fullPath(destPath)

	if _, err := os.Stat(dst); err == nil {
		return os.Remove(src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating destination directory").WithDetail(destPath)
	}
	if err := os.Rename(src, dst); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "moving").WithDetail(sourcePath)
	}
	return nil
}

func (d *Driver) Delete(path string) error {
	if err := os.RemoveAll(d.fullPath(path)); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "deleting").WithDetail(path)
	}
	return nil
}

func wrapIOErr(err error, path string) error {
	if os.IsNotExist(err) {
		return ipserr.New(ipserr.KindNotFound, "no such path").WithDetail(path)
	}
	return ipserr.Wrap(ipserr.KindIO, err, "filesystem operation").WithDetail(path)
}

var _ storagedriver.StorageDriver = (*Driver)(nil)
