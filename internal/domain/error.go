package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrSessionClosed    = errors.New("session closed")
	ErrRequestDiscarded = errors.New("completion result discarded")

	// Completion taxonomy
	ErrValidation        = errors.New("validation failed")
	ErrAuthentication    = errors.New("authentication failed")
	ErrNetwork           = errors.New("network error")
	ErrUpstream          = errors.New("upstream error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrAlreadyInProgress = errors.New("completion already in progress")
)

// UpstreamError is a non-2xx answer from the model provider.
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream http %d", e.StatusCode)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// ErrorKind is a stable label for an error, safe for API payloads and metric labels.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindValidation        ErrorKind = "validation"
	KindAuthentication    ErrorKind = "authentication"
	KindNetwork           ErrorKind = "network"
	KindUpstream          ErrorKind = "upstream"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindAlreadyInProgress ErrorKind = "already_in_progress"
	KindNotFound          ErrorKind = "not_found"
	KindClosed            ErrorKind = "closed"
	KindDiscarded         ErrorKind = "discarded"
	KindCanceled          ErrorKind = "canceled"
	KindUnknown           ErrorKind = "unknown"
)

// KindOf classifies err against the domain taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrAlreadyInProgress):
		return KindAlreadyInProgress
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSessionClosed):
		return KindClosed
	case errors.Is(err, ErrRequestDiscarded):
		return KindDiscarded
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// Validationf builds an ErrValidation with a reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

var kindSentinels = map[ErrorKind]error{
	KindValidation:        ErrValidation,
	KindAuthentication:    ErrAuthentication,
	KindNetwork:           ErrNetwork,
	KindUpstream:          ErrUpstream,
	KindMalformedResponse: ErrMalformedResponse,
	KindAlreadyInProgress: ErrAlreadyInProgress,
	KindNotFound:          ErrNotFound,
	KindClosed:            ErrSessionClosed,
	KindDiscarded:         ErrRequestDiscarded,
	KindCanceled:          context.Canceled,
}

// RestoreError rebuilds a persisted error so KindOf(RestoreError(k, m)) == k
// for every known kind. It returns nil when both kind and msg are empty.
func RestoreError(kind ErrorKind, msg string) error {
	if kind == KindNone && msg == "" {
		return nil
	}
	sentinel, ok := kindSentinels[kind]
	if !ok {
		return errors.New(msg)
	}
	if msg == "" || msg == sentinel.Error() {
		return sentinel
	}
	return &restoredError{sentinel: sentinel, msg: msg}
}

type restoredError struct {
	sentinel error
	msg      string
}

func (e *restoredError) Error() string { return e.msg }
func (e *restoredError) Unwrap() error { return e.sentinel }
