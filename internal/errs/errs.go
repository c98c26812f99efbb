// Package errs defines the typed error kinds used across the pipeline and
// admin HTTP surface (spec §7).
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and pipeline retry policy.
type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindBadRequest    Kind = "bad_request"
	KindNotFound      Kind = "not_found"
	KindUpstreamFetch Kind = "upstream_fetch"
	KindInference     Kind = "inference"
	KindPersistence   Kind = "persistence"
	KindCallback      Kind = "callback"
	KindInternal      Kind = "internal"
)

// Error is the structured error carried through the pipeline and surfaced by
// the admin HTTP handlers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Unauthorized(msg string) *Error            { return new_(KindUnauthorized, msg, nil) }
func BadRequest(msg string) *Error               { return new_(KindBadRequest, msg, nil) }
func NotFound(msg string) *Error                 { return new_(KindNotFound, msg, nil) }
func UpstreamFetch(msg string, err error) *Error { return new_(KindUpstreamFetch, msg, err) }
func Inference(msg string, err error) *Error     { return new_(KindInference, msg, err) }
func Persistence(msg string, err error) *Error   { return new_(KindPersistence, msg, err) }
func Callback(msg string, err error) *Error      { return new_(KindCallback, msg, err) }
func Internal(msg string, err error) *Error      { return new_(KindInternal, msg, err) }

// As extracts an *Error from an error chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the status codes spec §6/§7 require.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Recoverable reports whether the pipeline should back off and re-arm the
// workflow (RECOGNIZE tasks only) rather than treat the error as fatal.
func (k Kind) Recoverable() bool {
	return k == KindUpstreamFetch || k == KindInference
}
