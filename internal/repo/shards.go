package repo

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/shard"
)

// shardDir is the real filesystem directory holding a publisher's
// sqlite shard files, distinct from catalogDirPath (the storagedriver
// key space for catalog.*.C parts) per spec §4.5's separate "catalog/2"
// representation.
func (r *Repository) shardDir(publisher string) string {
	return filepath.Join(r.localRoot, "catalog2", publisher)
}

// BuildShards regenerates a publisher's active.db/fts.db/obsolete.db
// shards and catalog/2/catalog.attrs index from the same stem/version
// data Rebuild walks, so the catalog-parts view and the shard view
// never disagree about what is published (spec §4.5's "separate, more
// scalable catalog representation" is a rendering of the same state,
// not an independently maintained one).
func (r *Repository) BuildShards(publisher string) error {
	if r.localRoot == "" {
		return ipserr.New(ipserr.KindUnsupported, "shard subsystem requires a local filesystem root")
	}

	stemEntries, err := r.collectStemEntries(publisher)
	if err != nil {
		return err
	}

	var active, obsolete, all []shard.PackageRow
	for stem, versions := range stemEntries {
		for _, v := range versions {
			row := shard.PackageRow{
				FMRI:      "pkg://" + publisher + "/" + stem + "@" + v.Version,
				Publisher: publisher,
				Stem:      stem,
				Version:   v.Version,
				Summary:   v.Attrs["pkg.summary"],
			}
			all = append(all, row)
			active = append(active, row)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FMRI < all[j].FMRI })
	sort.Slice(active, func(i, j int) bool { return active[i].FMRI < active[j].FMRI })

	dir := r.shardDir(publisher)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating shard directory")
	}

	if err := shard.BuildPackageShard(filepath.Join(dir, shard.ActiveDB), active); err != nil {
		return err
	}
	if err := shard.BuildPackageShard(filepath.Join(dir, shard.ObsoleteDB), obsolete); err != nil {
		return err
	}
	if err := shard.BuildFTSShard(filepath.Join(dir, shard.FTSDB), all); err != nil {
		return err
	}

	idx, err := shard.ComputeIndex(dir, len(stemEntries), len(all))
	if err != nil {
		return err
	}
	data, err := shard.MarshalIndex(idx)
	if err != nil {
		return err
	}
	return r.writePartAtomic(shardIndexPath(publisher), data)
}

// ShardIndexBytes returns the raw catalog/2/catalog.attrs JSON for publisher.
func (r *Repository) ShardIndexBytes(publisher string) ([]byte, error) {
	return r.driver.GetContent(shardIndexPath(publisher))
}

// ShardBlobBytes locates and returns the shard file whose content hash
// is sha256Hex, per the content-addressed naming spec §3 describes.
func (r *Repository) ShardBlobBytes(publisher, sha256Hex string) ([]byte, error) {
	raw, err := r.ShardIndexBytes(publisher)
	if err != nil {
		return nil, err
	}
	idx, err := shard.ParseIndex(raw)
	if err != nil {
		return nil, err
	}
	for name, entry := range idx.Shards {
		if entry.SHA256 == sha256Hex {
			return r.driver.GetContent(filepath.Join(shardDirPath(publisher), name))
		}
	}
	return nil, ipserr.New(ipserr.KindNotFound, "no shard with that hash").WithDetail(sha256Hex)
}
