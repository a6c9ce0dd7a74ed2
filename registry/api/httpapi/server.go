// Package httpapi implements the server side of the HTTP wire protocol
// from spec §4.7. The route-table-plus-dispatcher-map shape and the
// App-as-shared-state pattern are adapted from registry/handlers/app.go,
// retargeted from Docker's v2 manifest/blob/tag routes onto pkg(5)'s
// versions/catalog/manifest/info/file/publisher/search endpoints, and
// from registry/api/errcode for error-to-status mapping (now provided by
// internal/ipserr instead).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/openindiana/pkg6/internal/repo"
)

// Server is the shared state backing every request handler, the way
// registry/handlers/app.go's App carries the driver/registry/router
// triple shared across dispatchers.
type Server struct {
	Repo        *repo.Repository
	RootDir     string // local filesystem root; handlers reach shard files through Repo, not this field
	CacheMaxAge time.Duration
	Log         logrus.FieldLogger

	router    *mux.Router
	startedAt time.Time
}

// NewServer builds a Server and registers every route from spec §4.7's
// endpoint table.
func NewServer(r *repo.Repository, rootDir string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		Repo:        r,
		RootDir:     rootDir,
		CacheMaxAge: 24 * time.Hour,
		Log:         log,
		router:      mux.NewRouter(),
		startedAt:   time.Now().UTC(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/versions/0", s.handleVersions).Methods(http.MethodGet)
	s.router.HandleFunc("/versions/0/", s.handleVersions).Methods(http.MethodGet)

	s.router.HandleFunc("/{pub}/catalog/1/{filename}", s.handleCatalogPart).Methods(http.MethodGet)
	s.router.HandleFunc("/{pub}/catalog/2/catalog.attrs", s.handleShardIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/{pub}/catalog/2/{sha256}", s.handleShardBlob).Methods(http.MethodGet)

	s.router.HandleFunc("/{pub}/manifest/{v:0|1}/{fmri:.+}", s.handleManifest).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/{pub}/info/0/{fmri:.+}", s.handleInfo).Methods(http.MethodGet)

	s.router.HandleFunc("/{pub}/file/0/{algo}/{digest}", s.handleFile).Methods(http.MethodGet)
	s.router.HandleFunc("/{pub}/file/1/{algo}/{digest}", s.handleFile).Methods(http.MethodGet)
	s.router.HandleFunc("/{pub}/file/1/{digest}", s.handleFile).Methods(http.MethodGet)

	s.router.HandleFunc("/{pub}/publisher/{v:0|1}", s.handlePublisherInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/{pub}/publisher/{v:0|1}/", s.handlePublisherInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/publisher/{v:0|1}", s.handlePublisherInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/publisher/{v:0|1}/", s.handlePublisherInfo).Methods(http.MethodGet)

	s.router.HandleFunc("/{pub}/search/0/{token:.+}", s.handleSearchV0).Methods(http.MethodGet)
	s.router.HandleFunc("/{pub}/search/1/{token:.+}", s.handleSearchV1).Methods(http.MethodGet)

	s.router.HandleFunc("/admin/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/admin/auth/check", s.handleAuthCheck).Methods(http.MethodPost)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
