// Package fmri implements the FMRI and Version algebra of spec §3/§4.3:
// parsing, canonical display, and ordering of package identifiers.
//
// Grammar (spec §4.3, parsed from the right):
//
//	fmri      := scheme ":" "//" [publisher] "/" name ["@" version]
//	           | scheme ":" "/" name ["@" version]
//	version   := release ["," branch] ["-" build] [":" timestamp]
//	release   := digits ("." digits)*
//	branch    := digits ("." digits)*
//	build     := digits ("." digits)*
//	timestamp := 8*HEXDIG "T" 6*HEXDIG "Z"
//
// This mirrors the reference package's grammar-in-a-doc-comment
// convention (reference/reference.go) though the underlying structure is
// unrelated to Docker's name[:tag]@digest grammar.
package fmri

import (
	"strconv"
	"strings"

	"github.com/openindiana/pkg6/internal/ipserr"
)

// Version is the (release, branch?, build?, timestamp?) tuple of spec §3.
type Version struct {
	Release   []uint64
	Branch    []uint64
	HasBranch bool
	Build     []uint64
	HasBuild  bool
	Timestamp string // "" if absent
}

// ParseVersion parses a version string from the right: optional
// ":timestamp", then optional "-build", then optional ",branch", then
// the required release vector.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, ipserr.New(ipserr.KindParse, "empty version")
	}

	var v Version
	rest := s

	if i := strings.LastIndex(rest, ":"); i >= 0 {
		ts := rest[i+1:]
		if err := validateTimestamp(ts); err != nil {
			return Version{}, err
		}
		v.Timestamp = ts
		rest = rest[:i]
	}

	if i := strings.LastIndex(rest, "-"); i >= 0 {
		build, err := parseVector(rest[i+1:])
		if err != nil {
			return Version{}, ipserr.Wrap(ipserr.KindParse, err, "invalid build")
		}
		v.Build = build
		v.HasBuild = true
		rest = rest[:i]
	}

	if i := strings.LastIndex(rest, ","); i >= 0 {
		branch, err := parseVector(rest[i+1:])
		if err != nil {
			return Version{}, ipserr.Wrap(ipserr.KindParse, err, "invalid branch")
		}
		v.Branch = branch
		v.HasBranch = true
		rest = rest[:i]
	}

	release, err := parseVector(rest)
	if err != nil {
		return Version{}, ipserr.Wrap(ipserr.KindParse, err, "invalid release")
	}
	v.Release = release

	return v, nil
}

// parseVector parses a non-empty, dot-separated sequence of digit runs.
func parseVector(s string) ([]uint64, error) {
	if s == "" {
		return nil, ipserr.New(ipserr.KindParse, "empty version component")
	}
	segs := strings.Split(s, ".")
	out := make([]uint64, len(segs))
	for i, seg := range segs {
		if seg == "" {
			return nil, ipserr.New(ipserr.KindParse, "empty segment in version component")
		}
		n, err := strconv.ParseUint(seg, 10, 64)
		if err != nil {
			return nil, ipserr.Wrap(ipserr.KindParse, err, "non-digit version segment")
		}
		out[i] = n
	}
	return out, nil
}

// validateTimestamp rejects any timestamp not of the exact form
// YYYYMMDDThhmmssZ (8 hex digits, "T", 6 hex digits, "Z"), per the
// spec §9 open-question decision to reject non-conforming timestamps
// rather than let the ordering guarantee degrade silently.
func validateTimestamp(ts string) error {
	if len(ts) != 16 || ts[8] != 'T' || ts[15] != 'Z' {
		return ipserr.New(ipserr.KindParse, "malformed timestamp").WithDetail(ts)
	}
	for i, r := range ts {
		if i == 8 || i == 15 {
			continue
		}
		if !((r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')) {
			return ipserr.New(ipserr.KindParse, "non-hex timestamp digit").WithDetail(ts)
		}
	}
	return nil
}

// String reverses Parse, reconstructing "release[,branch][-build][:timestamp]".
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(joinVector(v.Release))
	if v.HasBranch {
		b.WriteByte(',')
		b.WriteString(joinVector(v.Branch))
	}
	if v.HasBuild {
		b.WriteByte('-')
		b.WriteString(joinVector(v.Build))
	}
	if v.Timestamp != "" {
		b.WriteByte(':')
		b.WriteString(v.Timestamp)
	}
	return b.String()
}

func joinVector(vec []uint64) string {
	parts := make([]string, len(vec))
	for i, n := range vec {
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, ".")
}

// ToTriple converts release into a (major, minor, patch) triple,
// zero-padding if shorter than three components and truncating if
// longer, per spec §4.3.
func (v Version) ToTriple() (major, minor, patch uint64) {
	get := func(i int) uint64 {
		if i < len(v.Release) {
			return v.Release[i]
		}
		return 0
	}
	return get(0), get(1), get(2)
}

// Compare orders v against other: lexicographic on release, then
// branch, then build, then timestamp string; absent sorts before
// present (spec §4.3/§8 property 3).
func (v Version) Compare(other Version) int {
	if c := compareVectors(v.Release, other.Release); c != 0 {
		return c
	}
	if c := compareOptionalVectors(v.HasBranch, v.Branch, other.HasBranch, other.Branch); c != 0 {
		return c
	}
	if c := compareOptionalVectors(v.HasBuild, v.Build, other.HasBuild, other.Build); c != 0 {
		return c
	}
	return strings.Compare(v.Timestamp, other.Timestamp)
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

func compareOptionalVectors(hasA bool, a []uint64, hasB bool, b []uint64) int {
	if !hasA && !hasB {
		return 0
	}
	if !hasA {
		return -1
	}
	if !hasB {
		return 1
	}
	return compareVectors(a, b)
}

func compareVectors(a, b []uint64) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv uint64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
