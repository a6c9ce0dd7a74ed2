// Package shard implements the server's "shard index" catalog
// representation from spec §4.5: a small JSON index (catalog.attrs)
// enumerating content-addressed, SQLite-backed blobs (active.db,
// fts.db, obsolete.db). Grounded on quay-claircore's rpm/sqlite package
// for the modernc.org/sqlite file-URL-with-pragma open pattern, and on
// its datastore/postgres querybuilder for building SQL text with goqu
// rather than hand-written strings.
package shard

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"time"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3"
	_ "modernc.org/sqlite"

	"github.com/openindiana/pkg6/internal/ipserr"
)

const (
	ActiveDB   = "active.db"
	FTSDB      = "fts.db"
	ObsoleteDB = "obsolete.db"
)

// Entry is one shard's metadata within the index, per spec §3's
// "shard index" glossary entry.
type Entry struct {
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Index is catalog/2/catalog.attrs.
type Index struct {
	Version             int              `json:"version"`
	Created             time.Time        `json:"created"`
	LastModified        time.Time        `json:"last_modified"`
	PackageCount        int              `json:"package_count"`
	PackageVersionCount int              `json:"package_version_count"`
	Shards              map[string]Entry `json:"shards"`
}

// PackageRow is one row of the active/obsolete shard's "packages" table.
type PackageRow struct {
	FMRI      string
	Publisher string
	Stem      string
	Version   string
	Summary   string
	Obsolete  bool
}

func open(path string) (*sql.DB, error) {
	u := url.URL{
		Scheme: "file",
		Opaque: path,
		RawQuery: url.Values{
			"_pragma": {"foreign_keys(1)"},
		}.Encode(),
	}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "opening shard database").WithDetail(path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, ipserr.Wrap(ipserr.KindIO, err, "pinging shard database").WithDetail(path)
	}
	return db, nil
}

var dialect = goqu.Dialect("sqlite3")

// BuildPackageShard writes path as a fresh sqlite database holding one
// row per rows entry in a "packages" table — the shape both active.db
// and obsolete.db use (obsolete.db restricted to Obsolete rows by the
// caller), overwriting any existing file.
func BuildPackageShard(path string, rows []PackageRow) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ipserr.Wrap(ipserr.KindIO, err, "removing stale shard").WithDetail(path)
	}

	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	const schema = `CREATE TABLE packages (
		fmri TEXT PRIMARY KEY,
		publisher TEXT NOT NULL,
		stem TEXT NOT NULL,
		version TEXT NOT NULL,
		summary TEXT,
		obsolete INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating packages table")
	}

	ds := dialect.Insert("packages").Cols("fmri", "publisher", "stem", "version", "summary", "obsolete")
	for _, r := range rows {
		obsolete := 0
		if r.Obsolete {
			obsolete = 1
		}
		ds = ds.Vals(goqu.Vals{r.FMRI, r.Publisher, r.Stem, r.Version, r.Summary, obsolete})
	}
	if len(rows) > 0 {
		sqlStr, args, err := ds.Prepared(true).ToSQL()
		if err != nil {
			return ipserr.Wrap(ipserr.KindIO, err, "building shard insert")
		}
		if _, err := db.ExecContext(context.Background(), sqlStr, args...); err != nil {
			return ipserr.Wrap(ipserr.KindIO, err, "populating shard")
		}
	}
	return nil
}

// BuildFTSShard writes a search-token table: one row per package
// carrying the concatenated searchable text (stem, summary). Search
// matches with SQL LIKE rather than a virtual FTS5 table, since the
// latter requires a build-tag-enabled sqlite; spec §9's framing of
// case-folding as an implementation choice covers this substitution.
func BuildFTSShard(path string, rows []PackageRow) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ipserr.Wrap(ipserr.KindIO, err, "removing stale fts shard").WithDetail(path)
	}

	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	const schema = `CREATE TABLE tokens (
		fmri TEXT PRIMARY KEY,
		publisher TEXT NOT NULL,
		stem TEXT NOT NULL,
		version TEXT NOT NULL,
		text TEXT NOT NULL
	)`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating tokens table")
	}

	ds := dialect.Insert("tokens").Cols("fmri", "publisher", "stem", "version", "text")
	for _, r := range rows {
		ds = ds.Vals(goqu.Vals{r.FMRI, r.Publisher, r.Stem, r.Version, r.Stem + " " + r.Summary})
	}
	if len(rows) > 0 {
		sqlStr, args, err := ds.Prepared(true).ToSQL()
		if err != nil {
			return ipserr.Wrap(ipserr.KindIO, err, "building fts shard insert")
		}
		if _, err := db.ExecContext(context.Background(), sqlStr, args...); err != nil {
			return ipserr.Wrap(ipserr.KindIO, err, "populating fts shard")
		}
	}
	return nil
}

// ReadPackages returns every row in a packages-shaped shard (active.db
// or obsolete.db).
func ReadPackages(path string) ([]PackageRow, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	sqlStr, _, err := dialect.From("packages").
		Select("fmri", "publisher", "stem", "version", "summary", "obsolete").
		Order(goqu.I("fmri").Asc()).
		ToSQL()
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "building shard select")
	}

	rows, err := db.QueryContext(context.Background(), sqlStr)
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "querying shard")
	}
	defer rows.Close()

	var out []PackageRow
	for rows.Next() {
		var r PackageRow
		var obsolete int
		if err := rows.Scan(&r.FMRI, &r.Publisher, &r.Stem, &r.Version, &r.Summary, &obsolete); err != nil {
			return nil, ipserr.Wrap(ipserr.KindIO, err, "scanning shard row")
		}
		r.Obsolete = obsolete != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Search runs a substring match over a fts.db-shaped shard's text
// column using SQLite's LIKE, which folds ASCII letters (so matching is
// case-insensitive for ASCII and case-sensitive beyond it); the term is
// not otherwise case-folded.
func Search(path, term string) ([]PackageRow, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	sqlStr, args, err := dialect.From("tokens").
		Select("fmri", "publisher", "stem", "version").
		Where(goqu.L("text LIKE ?", "%"+term+"%")).
		Order(goqu.I("fmri").Asc()).
		ToSQL()
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "building search query")
	}

	rows, err := db.QueryContext(context.Background(), sqlStr, args...)
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "running search query")
	}
	defer rows.Close()

	var out []PackageRow
	for rows.Next() {
		var r PackageRow
		if err := rows.Scan(&r.FMRI, &r.Publisher, &r.Stem, &r.Version); err != nil {
			return nil, ipserr.Wrap(ipserr.KindIO, err, "scanning search row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ComputeIndex stats the three conventional shard files under dir and
// assembles the Index that is served at catalog/2/catalog.attrs,
// hashing each with SHA-256 per spec §4.5's content-addressing rule.
func ComputeIndex(dir string, packageCount, versionCount int) (Index, error) {
	idx := Index{
		Version:             1,
		Created:             time.Now().UTC(),
		LastModified:        time.Now().UTC(),
		PackageCount:        packageCount,
		PackageVersionCount: versionCount,
		Shards:              map[string]Entry{},
	}

	for _, name := range []string{ActiveDB, FTSDB, ObsoleteDB} {
		p := dir + "/" + name
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Index{}, ipserr.Wrap(ipserr.KindIO, err, "reading shard for indexing").WithDetail(p)
		}
		sum := sha256.Sum256(data)
		fi, statErr := os.Stat(p)
		modTime := time.Now().UTC()
		if statErr == nil {
			modTime = fi.ModTime().UTC()
		}
		idx.Shards[name] = Entry{
			SHA256:       hex.EncodeToString(sum[:]),
			Size:         int64(len(data)),
			LastModified: modTime,
		}
	}
	return idx, nil
}

// MarshalIndex renders idx as the JSON bytes served at catalog.attrs.
func MarshalIndex(idx Index) ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "marshaling shard index")
	}
	return data, nil
}

// ParseIndex decodes catalog.attrs bytes into an Index.
func ParseIndex(data []byte) (Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, ipserr.Wrap(ipserr.KindParse, err, "decoding shard index")
	}
	return idx, nil
}
