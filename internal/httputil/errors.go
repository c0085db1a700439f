// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error classes shared by all connectors. Callers branch on them with
// errors.Is; a *StatusError unwraps to exactly one class.
var (
	// ErrRateLimited means the source kept answering HTTP 429 past the
	// gate's maximum wait.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound means the source reported the item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrServer covers any other non-success status.
	ErrServer = errors.New("server error")

	// ErrMalformed means the response could not be interpreted.
	ErrMalformed = errors.New("malformed response")

	// ErrUnreachable means every attempt failed before a complete response
	// arrived (connection refused or reset, TLS failure, timeout) and the
	// retry bound is used up. It rejects the item; other items on other
	// hosts are unaffected.
	ErrUnreachable = errors.New("unreachable")

	// ErrAuth means the source rejected the configured credentials.
	ErrAuth = errors.New("credentials rejected")
)

// StatusError reports a non-success HTTP status from a named source.
type StatusError struct {
	Source     string
	StatusCode int
	Class      error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %v", e.Source, e.StatusCode, e.Class)
}

func (e *StatusError) Unwrap() error { return e.Class }

// CheckStatus classifies resp.StatusCode. It returns nil for 200 OK. For
// any other status the body is drained and closed and a *StatusError is
// returned: 404 is ErrNotFound, 429 is ErrRateLimited, anything else is
// ErrServer.
func CheckStatus(source string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	class := ErrServer
	switch resp.StatusCode {
	case http.StatusNotFound:
		class = ErrNotFound
	case http.StatusTooManyRequests:
		class = ErrRateLimited
	}
	return &StatusError{Source: source, StatusCode: resp.StatusCode, Class: class}
}

// Malformed wraps err as ErrMalformed for source.
func Malformed(source string, err error) error {
	return fmt.Errorf("%s: %w: %v", source, ErrMalformed, err)
}
