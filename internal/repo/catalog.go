package repo

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/manifest"
)

// VersionEntry is one published version of a stem within a catalog part
// (spec §3's "catalog part" glossary entry).
type VersionEntry struct {
	Version string            `json:"version"`
	Actions []string          `json:"actions,omitempty"`
	SHA1    string            `json:"sha1,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// CatalogPart is the per-stem, per-publisher version list persisted at
// catalog.<part>.C.
type CatalogPart struct {
	Publisher  string                    `json:"publisher"`
	Part       string                    `json:"part"`
	Packages   map[string][]VersionEntry `json:"packages"`
	Signature  map[string]string         `json:"_SIGNATURE,omitempty"`
}

// CatalogAttrs is catalog.attrs, the top-level per-publisher summary.
type CatalogAttrs struct {
	Version             int               `json:"version"`
	Created             time.Time         `json:"created"`
	LastModified         time.Time        `json:"last-modified"`
	PackageCount         int              `json:"package_count"`
	PackageVersionCount  int              `json:"package_version_count"`
	Parts                map[string]string `json:"parts"` // part name → sha1 of its bytes with _SIGNATURE cleared
	Signature            map[string]string `json:"_SIGNATURE,omitempty"`
}

// partNames are the three catalog parts rebuild() generates, per spec
// §4.4's "writes fresh catalog.base.C etc." and §3's glossary entry.
var partNames = []string{"base", "dependency", "summary"}

// Rebuild regenerates a publisher's full catalog from scratch by
// walking pkg/<publisher>/, the way registry/storage/catalog.go's Walk
// enumerates a repository's directory tree. If publisher is "", every
// known publisher is rebuilt.
func (r *Repository) Rebuild(publisher string, noCatalog bool) error {
	pubs, err := r.publishersToProcess(publisher)
	if err != nil {
		return err
	}
	if noCatalog {
		return nil
	}
	for _, p := range pubs {
		if err := r.rebuildOne(p); err != nil {
			return err
		}
	}
	return nil
}

// Refresh is Rebuild restricted to a single, already-known publisher;
// it is the step a Txn.Commit runs automatically after finalizing a
// publish, per spec §4.4's "a rebuild step regenerates the catalog
// parts" data flow description.
func (r *Repository) Refresh(publisher string) error {
	return r.rebuildOne(publisher)
}

func (r *Repository) publishersToProcess(publisher string) ([]string, error) {
	if publisher != "" {
		return []string{publisher}, nil
	}
	return r.Publishers()
}

func (r *Repository) rebuildOne(publisher string) error {
	stemEntries, err := r.collectStemEntries(publisher)
	if err != nil {
		return err
	}

	attrs := CatalogAttrs{
		Version: 1,
		Created: time.Now().UTC(),
		Parts:   map[string]string{},
	}
	packageCount := len(stemEntries)
	versionCount := 0
	for _, versions := range stemEntries {
		versionCount += len(versions)
	}
	attrs.PackageCount = packageCount
	attrs.PackageVersionCount = versionCount
	attrs.LastModified = attrs.Created

	for _, part := range partNames {
		cp := CatalogPart{Publisher: publisher, Part: part, Packages: stemEntries}
		sig, data, err := signAndMarshal(cp)
		if err != nil {
			return err
		}
		cp.Signature = sig
		if err := r.writePartAtomic(catalogPartPath(publisher, part), data); err != nil {
			return err
		}
		attrs.Parts[part] = sig["sha-1"]
	}

	sig, data, err := signAndMarshal(attrs)
	if err != nil {
		return err
	}
	attrs.Signature = sig
	if err := r.writePartAtomic(catalogAttrsPath(publisher), data); err != nil {
		return err
	}

	if r.localRoot == "" {
		return nil
	}
	return r.BuildShards(publisher)
}

func (r *Repository) collectStemEntries(publisher string) (map[string][]VersionEntry, error) {
	stems, err := r.driver.List("pkg/" + publisher)
	if err != nil {
		if ipserr.As(err, ipserr.KindNotFound) {
			return map[string][]VersionEntry{}, nil
		}
		return nil, err
	}

	out := make(map[string][]VersionEntry, len(stems))
	for _, stemDir := range stems {
		stem := decodeStemSegment(base(stemDir))
		versions, err := r.ListManifests(publisher, stem)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			continue
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })

		entries := make([]VersionEntry, 0, len(versions))
		for _, v := range versions {
			f := fmri.FMRI{Scheme: "pkg", Publisher: publisher, Name: stem, Version: v, HasVersion: true}
			raw, err := r.GetManifestBytes(f)
			if err != nil {
				return nil, err
			}
			m, _ := manifest.Parse(bytes.NewReader(raw))
			entries = append(entries, VersionEntry{
				Version: v.String(),
				Attrs:   summaryAttrs(m),
			})
		}
		out[stem] = entries
	}
	return out, nil
}

// summaryAttrs extracts the "set" action attributes a catalog.summary.C
// entry carries (e.g. pkg.summary, pkg.description).
func summaryAttrs(m *manifest.Manifest) map[string]string {
	if m == nil {
		return nil
	}
	out := map[string]string{}
	for _, a := range m.Actions {
		if a.Kind != manifest.KindSet || a.AttrName == "" || len(a.AttrValues) == 0 {
			continue
		}
		out[a.AttrName] = a.AttrValues[0]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// writePartAtomic writes data to path via a temp-then-rename path,
// satisfying spec §4.4's "manifest is never partially visible" and the
// analogous invariant for catalog parts.
func (r *Repository) writePartAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := r.driver.PutContent(tmp, data); err != nil {
		return err
	}
	return r.driver.Move(tmp, path)
}

// signAndMarshal marshals v to JSON, computes the sha-1 of those bytes,
// and returns both the signature map (spec §4.4/§7's "_SIGNATURE"
// convention) and the re-marshaled bytes with the signature embedded.
// v must be a pointer-free value whose JSON shape has a "_SIGNATURE"
// field that marshals as omitempty when nil, so the first pass excludes it.
func signAndMarshal(v any) (map[string]string, []byte, error) {
	unsigned, err := json.Marshal(v)
	if err != nil {
		return nil, nil, ipserr.Wrap(ipserr.KindIO, err, "marshaling catalog part")
	}
	sum := sha1.Sum(unsigned)
	sig := map[string]string{"sha-1": hex.EncodeToString(sum[:])}

	switch t := v.(type) {
	case CatalogPart:
		t.Signature = sig
		data, err := json.Marshal(t)
		return sig, data, wrapMarshalErr(err)
	case CatalogAttrs:
		t.Signature = sig
		data, err := json.Marshal(t)
		return sig, data, wrapMarshalErr(err)
	default:
		return nil, nil, ipserr.New(ipserr.KindInvariant, "signAndMarshal: unsupported type")
	}
}

func wrapMarshalErr(err error) error {
	if err == nil {
		return nil
	}
	return ipserr.Wrap(ipserr.KindIO, err, "marshaling signed catalog part")
}

// VerifyCatalogPartSignature recomputes the sha-1 of a catalog.*.C part
// with its _SIGNATURE cleared and compares it against the stored value,
// per spec §9's testable property 7. Re-marshaling through the same
// CatalogPart struct (rather than a generic map) preserves the field
// order signAndMarshal used, so the recomputed hash matches byte-for-byte.
func VerifyCatalogPartSignature(data []byte) error {
	var cp CatalogPart
	if err := json.Unmarshal(data, &cp); err != nil {
		return ipserr.Wrap(ipserr.KindParse, err, "decoding catalog part for signature check")
	}
	want := cp.Signature["sha-1"]
	if want == "" {
		return ipserr.New(ipserr.KindIntegrity, "catalog part carries no _SIGNATURE.sha-1")
	}
	cp.Signature = nil
	return verifySHA1(data, cp, want)
}

// VerifyCatalogAttrsSignature is VerifyCatalogPartSignature's counterpart
// for catalog.attrs.
func VerifyCatalogAttrsSignature(data []byte) error {
	var attrs CatalogAttrs
	if err := json.Unmarshal(data, &attrs); err != nil {
		return ipserr.Wrap(ipserr.KindParse, err, "decoding catalog attrs for signature check")
	}
	want := attrs.Signature["sha-1"]
	if want == "" {
		return ipserr.New(ipserr.KindIntegrity, "catalog attrs carries no _SIGNATURE.sha-1")
	}
	attrs.Signature = nil
	return verifySHA1(data, attrs, want)
}

func verifySHA1(_ []byte, cleared any, want string) error {
	clearedBytes, err := json.Marshal(cleared)
	if err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "re-marshaling for signature check")
	}
	sum := sha1.Sum(clearedBytes)
	got := hex.EncodeToString(sum[:])
	if got != want {
		return ipserr.Newf(ipserr.KindIntegrity, "catalog signature mismatch: want %s got %s", want, got)
	}
	return nil
}
