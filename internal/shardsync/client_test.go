package shardsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindiana/pkg6/internal/shard"
)

// TestSyncDownloadsAndSkipsUnchangedS5 reproduces spec scenario S5: an
// empty local cache downloads the advertised shard; a second sync
// against an unchanged index issues no further shard GETs.
func TestSyncDownloadsAndSkipsUnchangedS5(t *testing.T) {
	shardBody := []byte("opaque shard bytes")
	idx := mustIndexFor(t, shardBody)

	var shardGETs int
	mux := http.NewServeMux()
	mux.HandleFunc("/test/catalog/2/catalog.attrs", func(w http.ResponseWriter, r *http.Request) {
		data, err := shard.MarshalIndex(idx)
		require.NoError(t, err)
		w.Write(data)
	})
	mux.HandleFunc("/test/catalog/2/"+idx.Shards[shard.ActiveDB].SHA256, func(w http.ResponseWriter, r *http.Request) {
		shardGETs++
		w.Write(shardBody)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	localDir := t.TempDir()
	client := NewClient()

	require.NoError(t, client.Sync(context.Background(), srv.URL, "test", localDir))
	assert.Equal(t, 1, shardGETs)

	installed, err := os.ReadFile(filepath.Join(localDir, shard.ActiveDB))
	require.NoError(t, err)
	assert.Equal(t, shardBody, installed)

	require.NoError(t, client.Sync(context.Background(), srv.URL, "test", localDir))
	assert.Equal(t, 1, shardGETs, "re-syncing an unchanged index must not re-fetch the shard blob")
}

func TestSyncRejectsHashMismatch(t *testing.T) {
	idx := mustIndexFor(t, []byte("expected bytes"))

	mux := http.NewServeMux()
	mux.HandleFunc("/test/catalog/2/catalog.attrs", func(w http.ResponseWriter, r *http.Request) {
		data, err := shard.MarshalIndex(idx)
		require.NoError(t, err)
		w.Write(data)
	})
	mux.HandleFunc("/test/catalog/2/"+idx.Shards[shard.ActiveDB].SHA256, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient()
	err := client.Sync(context.Background(), srv.URL, "test", t.TempDir())
	require.Error(t, err)
}

func mustIndexFor(t *testing.T, shardBody []byte) shard.Index {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, writeAtomic(filepath.Join(dir, shard.ActiveDB), shardBody))
	idx, err := shard.ComputeIndex(dir, 1, 1)
	require.NoError(t, err)
	return idx
}
