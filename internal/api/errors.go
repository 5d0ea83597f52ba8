// Package api provides the REST client for the drive backend and the error
// types it returns.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
)

// Sentinel errors. Use errors.Is; HTTPStatusError matches ErrUnauthorized
// for 401/403 and ErrCancelled for the backend's cancelled-upload answer.
var (
	// ErrNetwork wraps transport-level failures (DNS, connect, reset, timeout).
	ErrNetwork = errors.New("network failure")

	// ErrCancelled marks requests aborted by the user.
	ErrCancelled = errors.New("cancelled by user")

	// ErrUnauthorized means the token is missing, expired or rejected.
	ErrUnauthorized = errors.New("unauthorized: run 'tgdrive login'")
)

// StatusClientClosedRequest is what the backend answers for an upload that
// was cancelled via /upload/cancel.
const StatusClientClosedRequest = 499

// The upload handler re-raises its 499 from a catch-all, so the answer
// usually arrives as a 500 whose detail starts with "499:".
const cancelledDetailPrefix = "499:"

// HTTPStatusError is a non-2xx response. Detail holds the server-provided
// message ("detail" field of the JSON body, or the raw body text).
type HTTPStatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *HTTPStatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s failed: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s failed: status %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// Is lets errors.Is(err, ErrUnauthorized) and errors.Is(err, ErrCancelled)
// see through status errors.
func (e *HTTPStatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == nethttp.StatusUnauthorized || e.StatusCode == nethttp.StatusForbidden
	case ErrCancelled:
		return e.StatusCode == StatusClientClosedRequest ||
			(e.StatusCode == nethttp.StatusInternalServerError && strings.HasPrefix(e.Detail, cancelledDetailPrefix))
	}
	return false
}

// ParseError is a 2xx response whose body could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to decode response of %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind is the coarse failure category used by callers that only need to
// pick a terminal state or a message.
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindHTTPStatus
	KindCancelled
	KindParse
	KindUnauthorized
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http-status"
	case KindCancelled:
		return "cancelled"
	case KindParse:
		return "parse"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "other"
	}
}

// Classify maps an error returned by this package to its Kind.
// Cancellation wins over everything else.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindUnauthorized
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return KindHTTPStatus
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return KindParse
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindOther
}

// Detail returns the raw server detail carried by err, or err.Error() when
// there is none. Used for user-facing notifications.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.Detail != "" {
		return statusErr.Detail
	}
	return err.Error()
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == nethttp.StatusNotFound
}

// parseDetail extracts the message from an error body. FastAPI-style
// {"detail": "..."} bodies yield the string; validation errors (a list) and
// anything else yield the trimmed raw text.
func parseDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var s string
		if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &s) == nil && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}

// networkError wraps a transport failure, turning context cancellation into
// ErrCancelled.
func networkError(method, path string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", method, path, ErrCancelled)
	}
	return fmt.Errorf("%s %s: %w: %w", method, path, ErrNetwork, err)
}
