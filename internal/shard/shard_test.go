package shard

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRows() []PackageRow {
	return []PackageRow{
		{FMRI: "pkg://test/example@1.0.0", Publisher: "test", Stem: "example", Version: "1.0.0", Summary: "an example package"},
		{FMRI: "pkg://test/old-thing@0.9.0", Publisher: "test", Stem: "old-thing", Version: "0.9.0", Summary: "deprecated", Obsolete: true},
	}
}

func TestBuildAndReadPackageShard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ActiveDB)

	require.NoError(t, BuildPackageShard(path, testRows()))

	got, err := ReadPackages(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pkg://test/example@1.0.0", got[0].FMRI)
	assert.True(t, got[1].Obsolete)
}

func TestBuildAndSearchFTSShard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FTSDB)

	require.NoError(t, BuildFTSShard(path, testRows()))

	hits, err := Search(path, "example")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "example", hits[0].Stem)

	hits, err = Search(path, "nonexistent-term")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestComputeIndexHashesShards(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, BuildPackageShard(filepath.Join(dir, ActiveDB), testRows()))
	require.NoError(t, BuildFTSShard(filepath.Join(dir, FTSDB), testRows()))

	idx, err := ComputeIndex(dir, 2, 2)
	require.NoError(t, err)

	active, ok := idx.Shards[ActiveDB]
	require.True(t, ok)
	assert.Len(t, active.SHA256, 64)
	assert.Greater(t, active.Size, int64(0))

	_, ok = idx.Shards[ObsoleteDB]
	assert.False(t, ok, "obsolete.db was never written, so it must be absent from the index")

	data, err := MarshalIndex(idx)
	require.NoError(t, err)

	round, err := ParseIndex(data)
	require.NoError(t, err)
	assert.Equal(t, idx.Shards[ActiveDB].SHA256, round.Shards[ActiveDB].SHA256)
}
