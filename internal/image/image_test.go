package image

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindiana/pkg6/internal/shard"
)

func TestCreateLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	img, err := Create(root, TypeFull)
	require.NoError(t, err)
	require.NoError(t, img.AddPublisher("test", "https://pkg.example.org/test", nil, false))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, TypeFull, loaded.Type())
	pubs := loaded.Publishers()
	require.Len(t, pubs, 1)
	assert.True(t, pubs[0].Preferred)
}

func TestAddPublisherRejectsDuplicate(t *testing.T) {
	root := t.TempDir()
	img, err := Create(root, TypeFull)
	require.NoError(t, err)
	require.NoError(t, img.AddPublisher("test", "https://a", nil, false))
	require.Error(t, img.AddPublisher("test", "https://b", nil, false))
}

type fakeSyncer struct{ called []string }

func (f *fakeSyncer) Sync(_ context.Context, origin, publisher, localDir string) error {
	f.called = append(f.called, publisher)
	return shard.BuildPackageShard(filepath.Join(localDir, shard.ActiveDB), []shard.PackageRow{
		{FMRI: "pkg://" + publisher + "/example@1.0.0", Publisher: publisher, Stem: "example", Version: "1.0.0"},
	})
}

func TestRefreshAndQueryCatalog(t *testing.T) {
	root := t.TempDir()
	img, err := Create(root, TypeFull)
	require.NoError(t, err)
	require.NoError(t, img.AddPublisher("test", "https://pkg.example.org/test", nil, false))

	syncer := &fakeSyncer{}
	require.NoError(t, img.RefreshCatalogs(context.Background(), syncer, nil, false))
	assert.Equal(t, []string{"test"}, syncer.called)

	entries, err := img.QueryCatalog("example")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pkg://test/example@1.0.0", entries[0].FMRI)

	none, err := img.QueryCatalog("nonexistent")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistoryRecordsOperations(t *testing.T) {
	root := t.TempDir()
	img, err := Create(root, TypeFull)
	require.NoError(t, err)
	require.NoError(t, img.AddPublisher("test", "https://a", nil, false))

	hist, err := img.History()
	require.NoError(t, err)
	require.NotEmpty(t, hist)

	found := false
	for _, h := range hist {
		if h.Operation == "add-publisher test" {
			found = true
		}
	}
	assert.True(t, found)
}

// TestCreateFullUsesVarPkgLayout reproduces spec §3/§4.6: a full image's
// metadata lives at <root>/var/pkg, never directly at <root>.
func TestCreateFullUsesVarPkgLayout(t *testing.T) {
	root := t.TempDir()
	_, err := Create(root, TypeFull)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "var", "pkg", "pkg6.image.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "pkg6.image.json"))
	require.True(t, os.IsNotExist(err))
}

// TestCreatePartialUsesDotPkgLayout is TestCreateFullUsesVarPkgLayout's
// partial-image counterpart.
func TestCreatePartialUsesDotPkgLayout(t *testing.T) {
	root := t.TempDir()
	_, err := Create(root, TypePartial)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, ".pkg", "pkg6.image.json"))
	require.NoError(t, err)

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, TypePartial, loaded.Type())
}

// TestLoadErrorsWithNeitherLayoutPresent covers spec §4.6's load(path)
// erroring "if neither layout is present".
func TestLoadErrorsWithNeitherLayoutPresent(t *testing.T) {
	root := t.TempDir()
	_, err := Load(root)
	require.Error(t, err)
}

// TestVariantsAndMediatorsRoundTrip reproduces spec §3's Image tuple
// variants{}/mediators{} surviving a save/Load cycle.
func TestVariantsAndMediatorsRoundTrip(t *testing.T) {
	root := t.TempDir()
	img, err := Create(root, TypeFull)
	require.NoError(t, err)

	require.NoError(t, img.SetVariant("variant.arch", "i386"))
	require.NoError(t, img.SetMediator("python", "3", "cpython"))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "i386", loaded.Variants()["variant.arch"])
	assert.Equal(t, Mediator{Version: "3", Implementation: "cpython"}, loaded.Mediators()["python"])
}

// TestAddPublisherCarriesMirrorsAndIsDefault covers spec §4.6's
// add_publisher(name, origin, mirrors, is_default) parameters.
func TestAddPublisherCarriesMirrorsAndIsDefault(t *testing.T) {
	root := t.TempDir()
	img, err := Create(root, TypeFull)
	require.NoError(t, err)

	require.NoError(t, img.AddPublisher("first", "https://first", nil, false))
	require.NoError(t, img.AddPublisher("second", "https://second", []string{"https://mirror.example.com"}, true))

	pubs := img.Publishers()
	require.Len(t, pubs, 2)
	assert.False(t, pubs[0].Preferred)
	assert.True(t, pubs[1].Preferred)
	assert.Equal(t, []string{"https://mirror.example.com"}, pubs[1].Mirrors)
}
