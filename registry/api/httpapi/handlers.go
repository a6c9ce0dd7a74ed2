package httpapi

import (
	"bytes"
	"compress/gzip"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/manifest"
)

// requiredOps mirrors the "Required ops" line of spec §4.7's versions
// response: each entry is an operation and the protocol versions this
// server answers it at.
var requiredOps = []struct {
	name     string
	versions []string
}{
	{"info", []string{"0"}},
	{"versions", []string{"0"}},
	{"catalog", []string{"1"}},
	{"manifest", []string{"0", "1"}},
	{"file", []string{"0", "1"}},
	{"publisher", []string{"0", "1"}},
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "pkg-server 1")
	for _, op := range requiredOps {
		fmt.Fprintf(w, "%s %s\n", op.name, strings.Join(op.versions, " "))
	}
}

func (s *Server) handleCatalogPart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pub, filename := vars["pub"], vars["filename"]

	var data []byte
	var err error
	switch {
	case filename == "catalog.attrs":
		data, err = s.Repo.CatalogAttrsBytes(pub)
	default:
		part := strings.TrimSuffix(strings.TrimPrefix(filename, "catalog."), ".C")
		data, err = s.Repo.CatalogPartBytes(pub, part)
	}
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	s.serveAddressable(w, r, data, "application/json", "")
}

func (s *Server) handleShardIndex(w http.ResponseWriter, r *http.Request) {
	pub := mux.Vars(r)["pub"]
	data, err := s.Repo.ShardIndexBytes(pub)
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	s.serveAddressable(w, r, data, "application/json", "")
}

func (s *Server) handleShardBlob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pub, sum := vars["pub"], vars["sha256"]
	data, err := s.Repo.ShardBlobBytes(pub, sum)
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	s.serveAddressable(w, r, data, "application/octet-stream", sum)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pub := vars["pub"]

	f, err := parseFMRIPathSegment(pub, vars["fmri"])
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	data, err := s.Repo.GetManifestBytes(f)
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	s.serveAddressable(w, r, data, "text/plain", "")
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pub := vars["pub"]

	f, err := parseFMRIPathSegment(pub, vars["fmri"])
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	raw, err := s.Repo.GetManifestBytes(f)
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	m, _ := manifest.Parse(bytes.NewReader(raw))

	var size, csize int64
	var packagingDate, buildRelease, branch, summary, licenseBody string
	for _, a := range m.Actions {
		switch a.Kind {
		case manifest.KindFile:
			size += a.Size
			csize += a.CSize
		case manifest.KindSet:
			switch a.AttrName {
			case "pkg.summary":
				if len(a.AttrValues) > 0 {
					summary = a.AttrValues[0]
				}
			case "pkg.packaging-date", "packaging_date":
				if len(a.AttrValues) > 0 {
					packagingDate = a.AttrValues[0]
				}
			case "pkg.build-release":
				if len(a.AttrValues) > 0 {
					buildRelease = a.AttrValues[0]
				}
			case "pkg.branch":
				if len(a.AttrValues) > 0 {
					branch = a.AttrValues[0]
				}
			}
		case manifest.KindLicense:
			if licenseBody == "" && a.Payload != nil {
				body, err := s.Repo.GetFileBytes(*a.Payload)
				if err == nil {
					licenseBody = renderLicenseBody(body)
				}
			}
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "          Name: %s\n", f.Name)
	fmt.Fprintf(w, "       Summary: %s\n", summary)
	fmt.Fprintf(w, "       Version: %s\n", f.Version.String())
	fmt.Fprintf(w, " Build Release: %s\n", buildRelease)
	fmt.Fprintf(w, "        Branch: %s\n", branch)
	fmt.Fprintf(w, "Packaging Date: %s\n", formatPackagingDate(packagingDate))
	fmt.Fprintf(w, "          Size: %d\n", size)
	fmt.Fprintf(w, "Compressed Size: %d\n", csize)
	fmt.Fprintf(w, "          FMRI: %s\n", f.String())
	if licenseBody != "" {
		fmt.Fprintf(w, "\n%s\n", licenseBody)
	}
}

// maxInlinedLicenseBytes is spec §4.7's "up to 256 KiB" inline limit.
const maxInlinedLicenseBytes = 256 * 1024

func renderLicenseBody(body []byte) string {
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		if gr, err := gzip.NewReader(bytes.NewReader(body)); err == nil {
			if decoded, err := readAllLimited(gr, maxInlinedLicenseBytes+1); err == nil {
				body = decoded
			}
			gr.Close()
		}
	}
	if len(body) > maxInlinedLicenseBytes {
		return string(body[:maxInlinedLicenseBytes]) + "...[truncated]"
	}
	return string(body)
}

func readAllLimited(r io.Reader, limit int) ([]byte, error) {
	buf := make([]byte, 0, limit)
	chunk := make([]byte, 32*1024)
	for len(buf) < limit {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}

// formatPackagingDate reformats spec §4.7's "YYYYMMDDThhmmss[.frac]Z"
// into "Month DD, YYYY at HH:MM:SS AM/PM". Non-conforming input is
// passed through unchanged (parse failure is not fatal to /info).
func formatPackagingDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{"20060102T150405.000000Z", "20060102T150405Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("January 2, 2006 at 03:04:05 PM")
		}
	}
	return s
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pub := vars["pub"]

	// The content store keys files by hex digest alone (contentPath
	// shards on the hex, not the algorithm), so {algo} is accepted for
	// wire compatibility with both /file/0/{algo}/{digest} and
	// /file/1/{digest} but not otherwise consulted.
	hexDigest := vars["digest"]
	d := digest.Digest{Algorithm: digest.SHA256, Hex: strings.ToLower(hexDigest)}

	_ = pub // file content is addressed globally, not per-publisher (spec §3)
	info, err := s.Repo.GetFile(d)
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	data, err := s.Repo.GetFileBytes(d)
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	w.Header().Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	s.serveAddressable(w, r, data, "application/octet-stream", d.Hex)
}

func (s *Server) handlePublisherInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pub := vars["pub"]

	var names []string
	if pub != "" {
		names = []string{pub}
	} else {
		all, err := s.Repo.Publishers()
		if err != nil {
			ipserr.ServeJSON(w, err)
			return
		}
		names = all
	}

	type publisherInfo struct {
		Name   string   `json:"name"`
		Origin []string `json:"origins"`
	}
	out := struct {
		Version    int             `json:"version"`
		Publishers []publisherInfo `json:"publishers"`
	}{Version: 1}
	for _, n := range names {
		out.Publishers = append(out.Publishers, publisherInfo{Name: n})
	}

	w.Header().Set("Content-Type", "application/vnd.pkg5.info")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleSearchV0(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, mux.Vars(r)["token"], false)
}

func (s *Server) handleSearchV1(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, mux.Vars(r)["token"], true)
}

// searchToken is spec §4.7's "<caseSensitive>_<returnType>_<transform>_
// <installRoot>_<query>" v1 grammar; the first four underscore-
// separated fields are fixed, everything after the fourth underscore is
// the query verbatim (it may itself contain '_' or percent-encoding).
type searchToken struct {
	CaseSensitive string
	ReturnType    string
	Transform     string
	InstallRoot   string
	Query         string
}

func parseSearchToken(raw string) searchToken {
	tok := searchToken{CaseSensitive: "False", ReturnType: "2", Transform: "None", InstallRoot: "None"}
	parts := strings.SplitN(raw, "_", 5)
	if len(parts) == 5 {
		tok.CaseSensitive, tok.ReturnType, tok.Transform, tok.InstallRoot, tok.Query = parts[0], parts[1], parts[2], parts[3], parts[4]
	} else {
		tok.Query = raw
	}
	if decoded, err := url.QueryUnescape(tok.Query); err == nil {
		tok.Query = decoded
	}
	return tok
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, rawToken string, v1 bool) {
	pub := mux.Vars(r)["pub"]
	tok := parseSearchToken(rawToken)

	rows, err := s.Repo.Search(pub, tok.Query)
	if err != nil {
		ipserr.ServeJSON(w, err)
		return
	}
	if len(rows) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	if v1 {
		fmt.Fprint(w, "Return from search v1\n")
	}
	p1 := "0"
	if strings.EqualFold(tok.CaseSensitive, "True") || tok.CaseSensitive == "1" {
		p1 = "1"
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s %s %s %s %s %s\n", p1, "1", row.FMRI, "basename", "set", row.Stem)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Uptime  string `json:"uptime"`
		Started string `json:"started_at"`
	}{
		Status:  "ok",
		Uptime:  time.Since(s.startedAt).String(),
		Started: s.startedAt.Format(time.RFC3339),
	})
}

// handleAuthCheck is a placeholder bearer check (spec §4.7): it only
// verifies an Authorization: Bearer header is present; the token itself
// is not validated.
func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	ok := strings.HasPrefix(auth, "Bearer ") && len(auth) > len("Bearer ")

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
	}
	json.NewEncoder(w).Encode(struct {
		Authorized bool `json:"authorized"`
	}{Authorized: ok})
}

// serveAddressable writes data with an ETag (sha-1 of data unless hint
// is supplied, e.g. a sha-256 already known for the resource) and the
// configured Cache-Control, honoring conditional GETs and HEAD.
func (s *Server) serveAddressable(w http.ResponseWriter, r *http.Request, data []byte, contentType, hint string) {
	etag := hint
	if etag == "" {
		sum := sha1.Sum(data)
		etag = hex.EncodeToString(sum[:])
	}
	quoted := strconv.Quote(etag)
	w.Header().Set("ETag", quoted)
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.CacheMaxAge.Seconds())))
	}
	w.Header().Set("Content-Type", contentType)

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == quoted {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		return
	}
	w.Write(data)
}

// parseFMRIPathSegment builds an FMRI from a publisher and a
// "name@version" (or bare "name") path segment, as mux captures it from
// /{pub}/manifest/{v}/{fmri} and /{pub}/info/0/{fmri}.
func parseFMRIPathSegment(pub, seg string) (fmri.FMRI, error) {
	decoded, err := url.PathUnescape(seg)
	if err != nil {
		return fmri.FMRI{}, ipserr.Wrap(ipserr.KindParse, err, "decoding fmri path segment")
	}
	return fmri.Parse("pkg://" + pub + "/" + decoded)
}
