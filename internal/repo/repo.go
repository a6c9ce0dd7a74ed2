// Package repo implements the server-side storage engine of spec §4.4:
// content-addressed file store, the manifest/transaction protocol, and
// catalog rebuild. The on-disk layout and commit-by-rename discipline
// are adapted from registry/storage/paths.go and
// registry/storage/blobwriter.go; repository enumeration is adapted
// from registry/storage/catalog.go's sorted directory walk.
package repo

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/repoconfig"
	"github.com/openindiana/pkg6/internal/storagedriver"
)

// Repository is a single on-disk package repository rooted at a
// storagedriver.StorageDriver.
type Repository struct {
	driver storagedriver.StorageDriver
	log    logrus.FieldLogger

	// localRoot is the real filesystem directory driver is rooted at.
	// The shard subsystem needs it because modernc.org/sqlite requires
	// an actual file path, not a storagedriver key; every other piece
	// of Repository goes through driver exclusively (see DESIGN.md).
	localRoot string
}

// Open loads (or, if absent, creates) the repository config at root and
// returns a Repository backed by driver. localRoot is driver's backing
// directory on the local filesystem, used only by the shard code
// (BuildShards and Search).
func Open(driver storagedriver.StorageDriver, localRoot string, log logrus.FieldLogger) (*Repository, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Repository{driver: driver, log: log, localRoot: localRoot}

	if _, err := r.loadConfig(); err != nil {
		if !ipserr.As(err, ipserr.KindNotFound) {
			return nil, err
		}
		if err := r.saveConfig(repoconfig.Default()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Repository) loadConfig() (repoconfig.Config, error) {
	data, err := r.driver.GetContent(repoConfigPath())
	if err != nil {
		return repoconfig.Config{}, err
	}
	return repoconfig.Parse(bytes.NewReader(data))
}

func (r *Repository) saveConfig(c repoconfig.Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "encoding repository config")
	}
	return r.driver.PutContent(repoConfigPath(), data)
}

// AddPublisher registers a new publisher with the repository.
func (r *Repository) AddPublisher(name string) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.AddPublisher(name); err != nil {
		return err
	}
	if err := r.driver.PutContent(catalogDirPath(name)+"/.keep", []byte{}); err != nil {
		return err
	}
	return r.saveConfig(cfg)
}

// RemovePublisher removes a publisher and its catalog and manifests.
func (r *Repository) RemovePublisher(name string) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RemovePublisher(name); err != nil {
		return err
	}
	if err := r.driver.Delete(catalogDirPath(name)); err != nil && !ipserr.As(err, ipserr.KindNotFound) {
		return err
	}
	if err := r.driver.Delete("pkg/" + name); err != nil && !ipserr.As(err, ipserr.KindNotFound) {
		return err
	}
	return r.saveConfig(cfg)
}

// Publishers lists the repository's known publishers.
func (r *Repository) Publishers() ([]string, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Publishers))
	for _, p := range cfg.Publishers {
		names = append(names, p.Name)
	}
	return names, nil
}

// GetFilePath resolves d to its content-store path, verifying it exists.
func (r *Repository) GetFilePath(d digest.Digest) (string, error) {
	p := contentPath(d.Hex)
	if _, err := r.driver.Stat(p); err != nil {
		return "", err
	}
	return p, nil
}

// GetFile returns the content store's metadata (size, modification
// time) for d; it does not open the content.
func (r *Repository) GetFile(d digest.Digest) (storagedriver.FileInfo, error) {
	p := contentPath(d.Hex)
	return r.driver.Stat(p)
}

// ListManifests enumerates every version of stem published by publisher,
// in the sorted order registry/storage/catalog.go's Walk produces.
func (r *Repository) ListManifests(publisher, stem string) ([]fmri.Version, error) {
	entries, err := r.driver.List(manifestDirPath(publisher, stem))
	if err != nil {
		if ipserr.As(err, ipserr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]fmri.Version, 0, len(entries))
	for _, e := range entries {
		v, err := fmri.ParseVersion(decodeVersionSegment(base(e)))
		if err != nil {
			r.log.WithError(err).WithField("entry", e).Warn("skipping unparsable manifest version directory entry")
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// GetManifestBytes returns the raw, unparsed manifest bytes for f.
func (r *Repository) GetManifestBytes(f fmri.FMRI) ([]byte, error) {
	return r.driver.GetContent(manifestPath(f))
}

func base(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	return p[i+1:]
}
