package fmri

import (
	"strings"

	"github.com/openindiana/pkg6/internal/ipserr"
)

// FMRI is the (scheme, publisher?, name, version?) tuple of spec §3.
type FMRI struct {
	Scheme        string
	Publisher     string // "" if absent
	Name          string
	Version       Version
	HasVersion    bool
}

// Parse parses an FMRI string: "scheme://publisher/name@version" or
// "scheme:/name@version" (publisher omitted entirely in the latter
// form). Parsing proceeds from the end: optional "@version" is split
// off first, then the scheme/publisher/name prefix.
func Parse(s string) (FMRI, error) {
	var f FMRI

	rest := s
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		v, err := ParseVersion(rest[i+1:])
		if err != nil {
			return FMRI{}, err
		}
		f.Version = v
		f.HasVersion = true
		rest = rest[:i]
	}

	schemeSep := strings.Index(rest, ":")
	if schemeSep < 0 {
		return FMRI{}, ipserr.New(ipserr.KindParse, "missing scheme").WithDetail(s)
	}
	f.Scheme = rest[:schemeSep]
	rest = rest[schemeSep+1:]

	switch {
	case strings.HasPrefix(rest, "//"):
		rest = rest[2:]
		i := strings.Index(rest, "/")
		if i < 0 {
			return FMRI{}, ipserr.New(ipserr.KindParse, "missing name after publisher").WithDetail(s)
		}
		f.Publisher = rest[:i]
		rest = rest[i+1:]
	case strings.HasPrefix(rest, "/"):
		rest = rest[1:]
	default:
		return FMRI{}, ipserr.New(ipserr.KindParse, "malformed scheme separator").WithDetail(s)
	}

	if rest == "" {
		return FMRI{}, ipserr.New(ipserr.KindInvariant, "empty fmri name").WithDetail(s)
	}
	f.Name = rest

	return f, nil
}

// String reconstructs the canonical display form: "pkg://pub/name@version"
// when a publisher is present, "pkg:/name@version" when absent.
func (f FMRI) String() string {
	var b strings.Builder
	b.WriteString(f.Scheme)
	b.WriteByte(':')
	if f.Publisher != "" {
		b.WriteString("//")
		b.WriteString(f.Publisher)
	} else {
		b.WriteByte('/')
	}
	if f.Publisher != "" {
		b.WriteByte('/')
	}
	b.WriteString(f.Name)
	if f.HasVersion {
		b.WriteByte('@')
		b.WriteString(f.Version.String())
	}
	return b.String()
}

// Stem is the publisher- and version-stripped name portion.
func (f FMRI) Stem() string { return f.Name }

// Matches reports whether stem equals this FMRI's stem.
func (f FMRI) Matches(stem string) bool { return f.Name == stem }

// Successor reports whether f's version sorts strictly after other's,
// given both share a stem; used by catalog/update-log replay to decide
// ordering of add/remove entries (SPEC_FULL.md FMRI expansion).
func (f FMRI) Successor(other FMRI) bool {
	if f.Name != other.Name {
		return false
	}
	if !f.HasVersion || !other.HasVersion {
		return false
	}
	return other.Version.Less(f.Version)
}
