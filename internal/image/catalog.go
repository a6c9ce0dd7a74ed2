package image

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/manifest"
	"github.com/openindiana/pkg6/internal/shard"
)

// CatalogEntry is one row of the image's merged, in-memory catalog,
// per spec §4.6's query_catalog("[(fmri, publisher, obsolete)]") shape.
type CatalogEntry struct {
	FMRI      string
	Publisher string
	Obsolete  bool
}

// CatalogSyncer pulls a publisher's catalog.attrs and shard blobs down
// to localDir, verifying hashes as it goes. internal/shardsync.Client
// satisfies this interface; it is accepted here as an interface rather
// than imported directly so the sync transport stays swappable.
type CatalogSyncer interface {
	Sync(ctx context.Context, origin, publisher, localDir string) error
}

// BuildCatalog merges every configured publisher's locally-synced
// active.db shard into one in-memory catalog. It does not talk to the
// network; call RefreshCatalogs first to populate the local cache.
func (img *Image) BuildCatalog() ([]CatalogEntry, error) {
	var merged []CatalogEntry
	for _, p := range img.state.Publishers {
		if !p.Enabled {
			continue
		}
		path := filepath.Join(catalogDir(img.metaDir(), p.Name), shard.ActiveDB)
		rows, err := shard.ReadPackages(path)
		if err != nil {
			if ipserr.As(err, ipserr.KindIO) || ipserr.As(err, ipserr.KindNotFound) {
				continue // publisher configured but never synced
			}
			return nil, err
		}
		for _, row := range rows {
			merged = append(merged, CatalogEntry{FMRI: row.FMRI, Publisher: row.Publisher, Obsolete: row.Obsolete})
		}
	}
	return merged, nil
}

// QueryCatalog filters the merged catalog by a substring match over
// either the stem or the full FMRI string, per spec §4.6.
func (img *Image) QueryCatalog(substring string) ([]CatalogEntry, error) {
	all, err := img.BuildCatalog()
	if err != nil {
		return nil, err
	}
	if substring == "" {
		return all, nil
	}
	var out []CatalogEntry
	for _, e := range all {
		if strings.Contains(e.FMRI, substring) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetManifestFromCatalog reads and parses the manifest cached for
// publisher under cacheKey.
// The manifest must already have been fetched into the local cache by a
// prior sync; this call does not reach out to the network.
func (img *Image) GetManifestFromCatalog(publisher, cacheKey string) (*manifest.Manifest, error) {
	path := filepath.Join(manifestCacheDir(img.metaDir(), publisher), sanitizeCacheKey(cacheKey))
	return manifest.ParseFile(path)
}

// CacheManifest stores raw manifest bytes under the local per-publisher
// manifest cache, keyed the same way GetManifestFromCatalog looks them
// up; shardsync/the HTTP client call this after a successful GET.
func (img *Image) CacheManifest(publisher, cacheKey string, raw []byte) error {
	dir := manifestCacheDir(img.metaDir(), publisher)
	return writeFileAtomic(filepath.Join(dir, sanitizeCacheKey(cacheKey)), raw)
}

func sanitizeCacheKey(key string) string {
	return strings.NewReplacer("/", "_", ":", "_", "@", "_").Replace(key)
}

// RefreshCatalogs re-syncs the named publishers (all configured
// publishers if names is empty) via syncer and records the refresh in
// the image history; BuildCatalog/QueryCatalog read the synced shards
// when called. full forces a from-scratch re-download rather
// than a hash-compare incremental sync, per spec §4.6's
// refresh_catalogs(publishers[], full) signature.
func (img *Image) RefreshCatalogs(ctx context.Context, syncer CatalogSyncer, names []string, full bool) error {
	targets := img.state.Publishers
	if len(names) > 0 {
		want := make(map[string]bool, len(names))
		for _, n := range names {
			want[n] = true
		}
		targets = nil
		for _, p := range img.state.Publishers {
			if want[p.Name] {
				targets = append(targets, p)
			}
		}
	}

	for _, p := range targets {
		if !p.Enabled {
			continue
		}
		dir := catalogDir(img.metaDir(), p.Name)
		if full {
			if err := removeAll(dir); err != nil {
				return err
			}
		}
		if err := syncer.Sync(ctx, p.Origin, p.Name, dir); err != nil {
			return err
		}
	}
	return recordHistory(img.metaDir(), "refresh-catalogs", time.Now().UTC())
}
