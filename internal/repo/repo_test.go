package repo

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/manifest"
	"github.com/openindiana/pkg6/internal/shard"
	"github.com/openindiana/pkg6/internal/storagedriver/filesystem"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	root := t.TempDir()
	d, err := filesystem.New(root)
	require.NoError(t, err)
	r, err := Open(d, root, nil)
	require.NoError(t, err)
	return r
}

// TestPublishAndRebuildS3 reproduces spec scenario S3: in an empty v4
// repository with publisher "test", publish a manifest with
// "set pkg.fmri pkg://test/example@1.0.0" and one file action whose
// payload is "Hello IPS"; after commit and rebuild, catalog.base.C
// lists test → example → [{version: "1.0.0"}] and the content store
// holds the bytes under file/<aa>/<bb>/<sha>.
func TestPublishAndRebuildS3(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.AddPublisher("test"))

	payload := []byte("Hello IPS")
	d, err := digest.FromBytes(digest.SourceUncompressedFile, digest.SHA256, payload)
	require.NoError(t, err)

	txn, err := r.Begin()
	require.NoError(t, err)

	f, err := fmri.Parse("pkg://test/example@1.0.0")
	require.NoError(t, err)
	require.NoError(t, txn.SetPublisher(f))
	require.NoError(t, txn.AddFile(d, bytes.NewReader(payload)))

	raw := "set name=pkg.fmri value=pkg://test/example@1.0.0\n" +
		"file " + d.String() + " path=hello.txt owner=root group=root mode=0644\n"
	m, err := manifest.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, txn.UpdateManifest(m))

	gotFMRI, err := txn.Commit()
	require.NoError(t, err)
	require.Equal(t, "example", gotFMRI.Name)

	versions, err := r.ListManifests("test", "example")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "1.0.0", versions[0].String())

	contentFound, err := r.GetFile(d)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), contentFound.Size)

	partBytes, err := r.CatalogPartBytes("test", "base")
	require.NoError(t, err)
	var part CatalogPart
	require.NoError(t, json.Unmarshal(partBytes, &part))
	require.Len(t, part.Packages["example"], 1)
	require.Equal(t, "1.0.0", part.Packages["example"][0].Version)

	stored, err := r.GetFileBytes(d)
	require.NoError(t, err)
	require.Equal(t, payload, stored)
}

// TestHierarchicalStemSurvivesListingAndRebuild reproduces spec scenario
// S1: a publisher publishes "web/server/nginx", whose stem contains "/"
// separators that must not become real subdirectories the catalog walk
// misreads as a truncated stem.
func TestHierarchicalStemSurvivesListingAndRebuild(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.AddPublisher("test"))

	payload := []byte("nginx binary")
	d, err := digest.FromBytes(digest.SourceUncompressedFile, digest.SHA256, payload)
	require.NoError(t, err)

	txn, err := r.Begin()
	require.NoError(t, err)
	f, err := fmri.Parse("pkg://test/web/server/nginx@1.0.0")
	require.NoError(t, err)
	require.NoError(t, txn.SetPublisher(f))
	require.NoError(t, txn.AddFile(d, bytes.NewReader(payload)))
	raw := "set name=pkg.fmri value=pkg://test/web/server/nginx@1.0.0\n" +
		"file " + d.String() + " path=nginx owner=root group=root mode=0755\n"
	m, err := manifest.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, txn.UpdateManifest(m))
	_, err = txn.Commit()
	require.NoError(t, err)

	stems, err := r.Stems("test")
	require.NoError(t, err)
	require.Contains(t, stems, "web/server/nginx")

	versions, err := r.ListManifests("test", "web/server/nginx")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "1.0.0", versions[0].String())

	attrsBytes, err := r.CatalogAttrsBytes("test")
	require.NoError(t, err)
	require.NotEmpty(t, attrsBytes)
}

func TestAbortLeavesNoTrace(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.AddPublisher("test"))

	txn, err := r.Begin()
	require.NoError(t, err)

	payload := []byte("discarded")
	d, err := digest.FromBytes(digest.SourceUncompressedFile, digest.SHA256, payload)
	require.NoError(t, err)
	require.NoError(t, txn.AddFile(d, bytes.NewReader(payload)))

	require.NoError(t, txn.Abort())

	_, err = r.GetFile(d)
	require.Error(t, err)
}

func TestCommitWithoutPublisherFails(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.AddPublisher("test"))

	txn, err := r.Begin()
	require.NoError(t, err)
	_, err = txn.Commit()
	require.Error(t, err)
}

func TestDuplicateContentIsDeduped(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.AddPublisher("test"))

	payload := []byte("shared bytes")
	d, err := digest.FromBytes(digest.SourceUncompressedFile, digest.SHA256, payload)
	require.NoError(t, err)

	publish := func(name string) fmri.FMRI {
		txn, err := r.Begin()
		require.NoError(t, err)
		f, err := fmri.Parse("pkg://test/" + name + "@1.0.0")
		require.NoError(t, err)
		require.NoError(t, txn.SetPublisher(f))
		require.NoError(t, txn.AddFile(d, bytes.NewReader(payload)))
		raw := "set name=pkg.fmri value=" + f.String() + "\n" +
			"file " + d.String() + " path=shared.txt owner=root group=root mode=0644\n"
		m, err := manifest.Parse(strings.NewReader(raw))
		require.NoError(t, err)
		require.NoError(t, txn.UpdateManifest(m))
		got, err := txn.Commit()
		require.NoError(t, err)
		return got
	}

	publish("alpha")
	publish("beta")

	content, err := r.GetFilePath(d)
	require.NoError(t, err)
	require.NotEmpty(t, content)
}

func TestRebuildBuildsShardsAlongsideCatalogParts(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.AddPublisher("test"))

	payload := []byte("shard me")
	d, err := digest.FromBytes(digest.SourceUncompressedFile, digest.SHA256, payload)
	require.NoError(t, err)

	txn, err := r.Begin()
	require.NoError(t, err)
	f, err := fmri.Parse("pkg://test/sharded@1.0.0")
	require.NoError(t, err)
	require.NoError(t, txn.SetPublisher(f))
	require.NoError(t, txn.AddFile(d, bytes.NewReader(payload)))
	raw := "set name=pkg.fmri value=pkg://test/sharded@1.0.0\n" +
		"file " + d.String() + " path=shard.txt owner=root group=root mode=0644\n"
	m, err := manifest.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, txn.UpdateManifest(m))
	_, err = txn.Commit()
	require.NoError(t, err)

	idxBytes, err := r.ShardIndexBytes("test")
	require.NoError(t, err)
	require.NotEmpty(t, idxBytes)

	idx, err := shard.ParseIndex(idxBytes)
	require.NoError(t, err)
	entry, ok := idx.Shards[shard.ActiveDB]
	require.True(t, ok, "active.db must be listed in the shard index")

	blob, err := r.ShardBlobBytes("test", entry.SHA256)
	require.NoError(t, err)
	require.NotEmpty(t, blob)
}
