// Package ipserr implements the categorized error taxonomy from spec §7,
// modelled after the teacher's registry/api/errcode descriptor-registry
// and JSON envelope (registry/api/errcode/register.go, handler.go).
package ipserr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is the error discriminant used for HTTP status mapping and for
// distinguishing categories that callers may want to branch on (e.g. a
// NotFound that a CLI should render as "no such package" versus a bare
// exit code).
type Kind string

const (
	KindParse         Kind = "PARSE"
	KindIO            Kind = "IO"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindIntegrity     Kind = "INTEGRITY"
	KindInvariant     Kind = "INVARIANT"
	KindUnauthorized  Kind = "UNAUTHORIZED"
	KindUnsupported   Kind = "UNSUPPORTED"
)

var statusByKind = map[Kind]int{
	KindParse:        http.StatusBadRequest,
	KindIO:           http.StatusInternalServerError,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindIntegrity:    http.StatusInternalServerError,
	KindInvariant:    http.StatusInternalServerError,
	KindUnauthorized: http.StatusUnauthorized,
	KindUnsupported:  http.StatusNotImplemented,
}

// Error is the concrete error type returned by every pkg6 package. It
// carries a Kind for HTTP/CLI dispatch, a human message, and optional
// structured context (path, URL, line number) the way the teacher's
// errcode.Error carries a free-form Detail.
type Error struct {
	Kind    Kind
	Message string
	// Detail holds category-specific context: a filesystem path for
	// KindIO, a 1-based line number for KindParse, etc.
	Detail any
	// Cause is the underlying error, if any, preserved for %w unwrapping.
	Cause error
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code this error maps to per spec §7's
// propagation policy (NotFound→404, Unauthorized→401, else 500, except
// the finer-grained mappings registered above).
func (e *Error) HTTPStatus() int {
	if sc, ok := statusByKind[e.Kind]; ok {
		return sc
	}
	return http.StatusInternalServerError
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying error, preserving it
// as Cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail returns a copy of e carrying the given detail value.
func (e *Error) WithDetail(detail any) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// envelope is the JSON wire shape served to HTTP clients, an
// intentionally smaller sibling of the teacher's errcode.Errors
// envelope (no machine-readable "code" vocabulary is specified, so a
// single kind/message/detail object is used instead of an array).
type envelope struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// ServeJSON writes err as a JSON error envelope with the status code its
// Kind maps to, mirroring registry/api/errcode/handler.go's ServeJSON.
func ServeJSON(w http.ResponseWriter, err error) error {
	w.Header().Set("Content-Type", "application/json")

	ierr, ok := err.(*Error)
	if !ok {
		ierr = &Error{Kind: KindIO, Message: err.Error()}
	}

	w.WriteHeader(ierr.HTTPStatus())
	return json.NewEncoder(w).Encode(envelope{
		Kind:    ierr.Kind,
		Message: ierr.Message,
		Detail:  ierr.Detail,
	})
}

// As reports whether err is an *Error of the given kind.
func As(err error, kind Kind) bool {
	ierr, ok := err.(*Error)
	return ok && ierr.Kind == kind
}
