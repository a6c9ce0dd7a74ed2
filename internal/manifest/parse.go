package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/ipserr"
)

// Manifest is a flat, ordered collection of actions (spec §3).
type Manifest struct {
	Actions []*Action
}

// ParseErrors collects the non-fatal, per-action errors accumulated
// while parsing, each tagged with the source line it came from, per
// spec §4.1's "errors are accumulated but parsing does not abort on a
// single bad action" policy.
type ParseErrors []error

func (p ParseErrors) Error() string {
	msgs := make([]string, len(p))
	for i, e := range p {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Parse reads a manifest from r. Comment lines ("#...") and
// "<transform ...>" lines are ignored. Only a failure to read r aborts
// parsing, returning a single *ipserr.Error. A line that cannot be
// tokenized (e.g. an unterminated quote) is skipped and its error is
// collected, together with per-action normalization errors, into a
// non-nil ParseErrors returned alongside the (still usable) Manifest.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	var errs ParseErrors

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "<transform") {
			continue
		}

		action, err := parseLine(text, line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, action.Errors...)
		m.Actions = append(m.Actions, action)
	}
	if err := scanner.Err(); err != nil {
		return nil, ipserr.Wrap(ipserr.KindParse, err, "reading manifest")
	}

	if len(errs) > 0 {
		return m, errs
	}
	return m, nil
}

// ParseFile reads and parses the manifest at path, matching the
// original pkg(5) tooling's path-oriented entry points (SPEC_FULL.md
// manifest expansion) rather than requiring callers to open the file
// themselves.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindIO, err, "opening manifest").WithDetail(path)
	}
	defer f.Close()
	return Parse(f)
}

// WriteFile serializes m and writes it to path.
func WriteFile(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "creating manifest").WithDetail(path)
	}
	defer f.Close()
	return Write(f, m)
}

// Write serializes m back into the action-per-line grammar, one action
// per line, property order preserved.
func Write(w io.Writer, m *Manifest) error {
	bw := bufio.NewWriter(w)
	for _, a := range m.Actions {
		if _, err := fmt.Fprintln(bw, serializeAction(a)); err != nil {
			return ipserr.Wrap(ipserr.KindIO, err, "writing manifest")
		}
	}
	return bw.Flush()
}

func serializeAction(a *Action) string {
	var b strings.Builder
	b.WriteString(string(a.Kind))
	if a.Payload != nil {
		b.WriteByte(' ')
		b.WriteString(a.Payload.String())
	}
	for _, kv := range a.Raw {
		b.WriteByte(' ')
		b.WriteString(kv.Key)
		b.WriteByte('=')
		if strings.ContainsAny(kv.Value, " \t") {
			b.WriteByte('"')
			b.WriteString(kv.Value)
			b.WriteByte('"')
		} else {
			b.WriteString(kv.Value)
		}
	}
	return b.String()
}

// parseLine tokenizes one action line: "<kind> [<payload-token>]
// (<key>=<value>)*", then dispatches to kind-specific normalization.
func parseLine(text string, line int) (*Action, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, ipserr.Wrap(ipserr.KindParse, err, fmt.Sprintf("line %d", line))
	}
	if len(tokens) == 0 {
		return nil, ipserr.New(ipserr.KindParse, fmt.Sprintf("line %d: empty action", line))
	}

	kind := Kind(tokens[0])
	rest := tokens[1:]

	// The payload token, if present, is either a bare digest, a
	// path-like token without "=", or a key=value pair.
	var payloadToken string
	hasPayload := len(rest) > 0 && !strings.Contains(rest[0], "=")
	if hasPayload {
		payloadToken = rest[0]
		rest = rest[1:]
	}

	raw := make(Properties, 0, len(rest))
	for _, tok := range rest {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		raw = append(raw, Property{Key: k, Value: unquote(v)})
	}

	action := newAction(kind, line, raw)
	if hasPayload {
		normalizePayloadToken(action, payloadToken)
	}
	// normalizePayloadToken may have prepended a synthetic property
	// (e.g. "original-path") onto action.Raw; normalize from there so
	// kind-specific handling sees the full property set.
	raw = action.Raw

	switch kind {
	case KindFile:
		normalizeFile(action, raw)
	case KindDir:
		normalizeDir(action, raw)
	case KindDepend:
		normalizeDepend(action, raw)
	case KindLink, KindHardlink:
		normalizeLink(action, raw)
	case KindLicense:
		normalizeLicense(action, raw)
	case KindUser:
		normalizeUser(action, raw)
	case KindGroup:
		normalizeGroup(action, raw)
	case KindDriver:
		normalizeDriver(action, raw)
	case KindSet:
		normalizeAttr(action, raw)
	case KindLegacy:
		action.Properties = raw
	default:
		action.Properties = raw
	}

	return action, nil
}

// normalizePayloadToken classifies the leading payload token of a file
// action: a bare digest string (parses into a Digest), a path-like
// token without "=" (stored as the "original-path" property — spec §9
// open question 2's mismatch is reproduced deliberately, see
// DESIGN.md), or otherwise left for the key=value loop to capture.
func normalizePayloadToken(a *Action, token string) {
	if d, err := digest.Parse(token); err == nil {
		a.Payload = &d
		return
	}
	// Path-like: stored under "original-path", not "original_name" —
	// reproducing the latent defect named in spec §9.
	a.Raw = append(Properties{{Key: "original-path", Value: token}}, a.Raw...)
}

// tokenize splits an action line into whitespace-separated tokens,
// honoring double-quoted values that may embed whitespace.
func tokenize(text string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case (c == ' ' || c == '\t') && !inQuotes:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()

	if inQuotes {
		return nil, ipserr.New(ipserr.KindParse, "unterminated quoted value")
	}
	return tokens, nil
}

// unquote strips '"' and '\' from v unconditionally, per spec §4.1 and
// the §9 open-question note: this mangles legitimate embedded
// backslashes, and is implemented literally rather than "fixed" with
// shell-style unquoting, per DESIGN.md's decision to preserve the
// documented behavior rather than guess at unstated intent.
func unquote(v string) string {
	v = strings.ReplaceAll(v, "\"", "")
	v = strings.ReplaceAll(v, "\\", "")
	return v
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t":
		return true, true
	case "false", "f":
		return false, true
	default:
		return false, false
	}
}
