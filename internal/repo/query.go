package repo

import (
	"path/filepath"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/shard"
)

// CatalogAttrsBytes returns the raw catalog.attrs JSON for publisher,
// the catalog/1 counterpart to ShardIndexBytes's catalog/2 index.
func (r *Repository) CatalogAttrsBytes(publisher string) ([]byte, error) {
	return r.driver.GetContent(catalogAttrsPath(publisher))
}

// CatalogPartBytes returns the raw catalog.<part>.C JSON for publisher.
func (r *Repository) CatalogPartBytes(publisher, part string) ([]byte, error) {
	return r.driver.GetContent(catalogPartPath(publisher, part))
}

// GetFileBytes reads the full content of the file stored under d,
// the read counterpart to GetFile's metadata-only Stat.
func (r *Repository) GetFileBytes(d digest.Digest) ([]byte, error) {
	return r.driver.GetContent(contentPath(d.Hex))
}

// Stems lists publisher's package stems, the way "pkgrepo list" walks
// pkg/<publisher>/ to enumerate what is published.
func (r *Repository) Stems(publisher string) ([]string, error) {
	entries, err := r.driver.List("pkg/" + publisher)
	if err != nil {
		if ipserr.As(err, ipserr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, decodeStemSegment(base(e)))
	}
	return out, nil
}

// Search runs a substring match over publisher's fts.db shard, serving
// /{pub}/search/{0,1} per spec §4.7. It requires localRoot, since
// internal/shard opens shard files directly on the filesystem.
func (r *Repository) Search(publisher, query string) ([]shard.PackageRow, error) {
	if r.localRoot == "" {
		return nil, ipserr.New(ipserr.KindUnsupported, "search requires a local filesystem root")
	}
	path := filepath.Join(r.shardDir(publisher), shard.FTSDB)
	return shard.Search(path, query)
}
