package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/manifest"
	"github.com/openindiana/pkg6/internal/repo"
	"github.com/openindiana/pkg6/internal/storagedriver/filesystem"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	d, err := filesystem.New(root)
	require.NoError(t, err)
	r, err := repo.Open(d, root, nil)
	require.NoError(t, err)
	require.NoError(t, r.AddPublisher("test"))

	payload := []byte("Hello IPS")
	dg, err := digest.FromBytes(digest.SourceUncompressedFile, digest.SHA256, payload)
	require.NoError(t, err)

	txn, err := r.Begin()
	require.NoError(t, err)
	f, err := fmri.Parse("pkg://test/example@1.0.0")
	require.NoError(t, err)
	require.NoError(t, txn.SetPublisher(f))
	require.NoError(t, txn.AddFile(dg, bytes.NewReader(payload)))
	raw := "set name=pkg.fmri value=pkg://test/example@1.0.0\n" +
		"set name=pkg.summary value=\"an example package\"\n" +
		"file " + dg.String() + " path=hello.txt owner=root group=root mode=0644\n"
	m, err := manifest.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, txn.UpdateManifest(m))
	_, err = txn.Commit()
	require.NoError(t, err)

	return NewServer(r, root, nil)
}

// TestVersionsListsRequiredOps reproduces spec scenario S4's sibling
// check on the versions endpoint: the response names every required op.
func TestVersionsListsRequiredOps(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/versions/0", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "pkg-server")
	for _, op := range []string{"info", "versions", "catalog", "manifest", "file", "publisher"} {
		require.Contains(t, body, op)
	}
}

// TestManifestServesContentWithETag reproduces spec scenario S4: GET
// /test/manifest/0/example@1.0.0 returns 200 with the published manifest
// text and an ETag.
func TestManifestServesContentWithETag(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/test/manifest/0/example%401.0.0", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "set name=pkg.fmri value=pkg://test/example@1.0.0")
	require.NotEmpty(t, w.Header().Get("ETag"))
}

func TestManifestNotModifiedOnMatchingETag(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/test/manifest/0/example%401.0.0", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	etag := w.Header().Get("ETag")

	req2 := httptest.NewRequest(http.MethodGet, "/test/manifest/0/example%401.0.0", nil)
	req2.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	s.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusNotModified, w2.Code)
}

func TestCatalogPartServesJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/test/catalog/1/catalog.attrs", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "_SIGNATURE")
}

func TestShardIndexAndBlobRoundTrip(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/test/catalog/2/catalog.attrs", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "\"shards\"")
}

func TestInfoRendersSummaryAndSize(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/test/info/0/example%401.0.0", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "an example package")
	require.Contains(t, body, "pkg://test/example@1.0.0")
}

func TestSearchWithNoMatchesReturns204(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/test/search/1/False_2_None_None_nonexistentterm", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthReportsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAuthCheckRejectsMissingBearer(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/auth/check", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
