package manifest

import (
	"fmt"
	"strings"
)

// normalizeFile walks a file action's properties per spec §4.1: path,
// owner, group, mode, revert-tag, original_name, sysattr go to
// dedicated fields; overlay/preserve parse as booleans; chash and
// pkg.content-hash append to additional_identifiers; facet.* keys go to
// the facets map; everything else flows to Properties. If no primary
// digest was produced from the payload token, the payload is dropped.
func normalizeFile(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch {
		case kv.Key == "path":
			a.Path = kv.Value
		case kv.Key == "owner":
			a.Owner = kv.Value
		case kv.Key == "group":
			a.Group = kv.Value
		case kv.Key == "mode":
			a.Mode = kv.Value
		case kv.Key == "revert-tag":
			a.RevertTag = kv.Value
		case kv.Key == "original_name":
			// The parser itself stores path-like payload tokens under
			// "original-path" (see normalizePayloadToken); this reader
			// deliberately keys off "original_name" to reproduce the
			// casing/separator mismatch named in spec §9 note 2.
			a.OriginalName = kv.Value
		case kv.Key == "sysattr":
			a.Sysattr = kv.Value
		case kv.Key == "overlay":
			if b, ok := parseBool(kv.Value); ok {
				a.Overlay = b
			} else {
				a.Errors = append(a.Errors, fmt.Errorf("line %d: invalid overlay value %q", a.Line, kv.Value))
			}
		case kv.Key == "preserve":
			if _, ok := parseBool(kv.Value); ok {
				a.Preserve = strings.ToLower(strings.TrimSpace(kv.Value))
			} else {
				a.Errors = append(a.Errors, fmt.Errorf("line %d: invalid preserve value %q", a.Line, kv.Value))
			}
		case kv.Key == "chash", kv.Key == "pkg.content-hash":
			a.AdditionalIDs = append(a.AdditionalIDs, kv.Value)
		case kv.Key == "pkg.size":
			a.Size = parseInt64(kv.Value)
		case kv.Key == "pkg.csize":
			a.CSize = parseInt64(kv.Value)
		case strings.HasPrefix(kv.Key, "facet."):
			a.Facets[strings.TrimPrefix(kv.Key, "facet.")] = kv.Value
		case kv.Key == "original-path":
			// produced by normalizePayloadToken; keep it visible in
			// Properties too since the canonical re-serialization walks
			// Raw, not the typed fields.
			kept = append(kept, kv)
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func normalizeDir(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "path":
			a.DirPath = kv.Value
		case "owner":
			a.Owner = kv.Value
		case "group":
			a.Group = kv.Value
		case "mode":
			a.Mode = kv.Value
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func normalizeDepend(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "type":
			a.DependType = kv.Value
		case "fmri":
			a.DependFMRI = append(a.DependFMRI, kv.Value)
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func normalizeLink(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "path":
			a.LinkPath = kv.Value
		case "target":
			a.LinkTarget = kv.Value
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func normalizeLicense(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "license":
			a.LicenseName = kv.Value
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func normalizeGroup(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "groupname":
			a.GroupName = kv.Value
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func normalizeDriver(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "name":
			a.DriverName = kv.Value
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

// normalizeUser decodes the "user" action. ftpuser receives the special
// treatment of spec §4.1/§8 property S6: "true" adds "ftp" to services;
// "false"/empty adds nothing; any other value is split on ",", trimmed,
// empty tokens dropped, and each remaining token added to services.
func normalizeUser(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "username":
			a.UserName = kv.Value
		case "ftpuser":
			a.Services = append(a.Services, decodeFtpuser(kv.Value)...)
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func decodeFtpuser(v string) []string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return []string{"ftp"}
	case "false", "":
		return nil
	}
	var out []string
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// normalizeAttr decodes the "set" (attr) action: "name=" populates
// AttrName, "value=" appends to AttrValues, other keys are kept as
// generic properties.
func normalizeAttr(a *Action, raw Properties) {
	var kept Properties
	for _, kv := range raw {
		switch kv.Key {
		case "name":
			a.AttrName = kv.Value
		case "value":
			a.AttrValues = append(a.AttrValues, kv.Value)
		default:
			kept = append(kept, kv)
		}
	}
	a.Properties = kept
}

func parseInt64(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
