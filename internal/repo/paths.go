package repo

import (
	"net/url"
	"path"

	"github.com/openindiana/pkg6/internal/fmri"
)

// On-disk layout, adapted from registry/storage/paths.go's path-mapper
// doctring (content-addressable blob store + per-repository links),
// retargeted from <name>/_manifests/... to the publisher/stem/version
// layout spec §4.4 describes:
//
//	<root>/pkg6.repository
//	<root>/pkg/<publisher>/<stem-url-encoded>/<version-url-encoded>  manifest, one file per FMRI
//	<root>/file/<aa>/<bb>/<hexdigest>               content store, shard-of-2
//	<root>/trans/<txn-id>/                          open transaction workspace
//	<root>/catalog/<publisher>/catalog.attrs        catalog parts
//	<root>/catalog/<publisher>/catalog.base.C
//	<root>/catalog/<publisher>/catalog.dependency.C
//	<root>/catalog/<publisher>/catalog.summary.C

func repoConfigPath() string {
	return "pkg6.repository"
}

func contentPath(hex string) string {
	if len(hex) < 4 {
		return path.Join("file", hex)
	}
	return path.Join("file", hex[0:2], hex[2:4], hex)
}

// encodeStemSegment/decodeStemSegment and encodeVersionSegment map a
// stem (which may itself contain "/", e.g. "web/server/nginx") and a
// version string to and from a single URL-encoded path segment, per
// spec §4.4's "pkg/<publisher>/<stem-url-encoded>/<version-url-
// encoded>" layout. Without this, a hierarchical stem nests into real
// subdirectories and is misread back as a truncated, wrong stem.
func encodeStemSegment(stem string) string   { return url.PathEscape(stem) }
func decodeStemSegment(seg string) string {
	decoded, err := url.PathUnescape(seg)
	if err != nil {
		return seg
	}
	return decoded
}

func encodeVersionSegment(version string) string { return url.PathEscape(version) }
func decodeVersionSegment(seg string) string {
	decoded, err := url.PathUnescape(seg)
	if err != nil {
		return seg
	}
	return decoded
}

func manifestDirPath(publisher, stem string) string {
	return path.Join("pkg", publisher, encodeStemSegment(stem))
}

func manifestPath(f fmri.FMRI) string {
	return path.Join(manifestDirPath(f.Publisher, f.Stem()), encodeVersionSegment(f.Version.String()))
}

func transDirPath(id string) string {
	return path.Join("trans", id)
}

func transManifestPath(id string) string {
	return path.Join(transDirPath(id), "manifest")
}

func transStartedAtPath(id string) string {
	return path.Join(transDirPath(id), "startedat")
}

func transStagedFilePath(id, hex string) string {
	return path.Join(transDirPath(id), "file", hex)
}

func catalogDirPath(publisher string) string {
	return path.Join("catalog", publisher)
}

func catalogAttrsPath(publisher string) string {
	return path.Join(catalogDirPath(publisher), "catalog.attrs")
}

func catalogPartPath(publisher, part string) string {
	return path.Join(catalogDirPath(publisher), "catalog."+part+".C")
}

// shardDirPath is the storagedriver key space holding a publisher's
// sqlite shard files and their index, spec §4.5's "catalog/2" layout.
func shardDirPath(publisher string) string {
	return path.Join("catalog2", publisher)
}

func shardIndexPath(publisher string) string {
	return path.Join(shardDirPath(publisher), "catalog.attrs")
}

