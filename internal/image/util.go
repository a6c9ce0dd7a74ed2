package image

import (
	"os"
	"path/filepath"

	"github.com/openindiana/pkg6/internal/ipserr"
)

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating cache directory").WithDetail(path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "writing cache file").WithDetail(path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "renaming cache file into place").WithDetail(path)
	}
	return nil
}

func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "clearing local cache").WithDetail(path)
	}
	return os.MkdirAll(path, 0o755)
}
