package resource

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited marks a remote call rejected for throttling.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedPayload marks an audit record whose payload cannot be used.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrRemoteUnavailable marks a remote call that failed for any other reason.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrInvalidWindow marks a missing or inverted time window.
	ErrInvalidWindow = errors.New("invalid time window")
	// ErrCanceled marks work abandoned because the request was canceled or timed out.
	ErrCanceled = errors.New("canceled or timed out")
	// ErrUnknownKind marks a kind with no registered adapter.
	ErrUnknownKind = errors.New("unknown resource kind")
	// ErrDeleteUnsupported marks a kind whose adapter cannot delete.
	ErrDeleteUnsupported = errors.New("delete not supported for kind")
	// ErrDeleteDenied marks a delete rejected by policy.
	ErrDeleteDenied = errors.New("delete denied by policy")
)

// Category is a stable, reportable error class.
type Category string

const (
	CategoryNone              Category = ""
	CategoryRateLimited       Category = "rate_limited"
	CategoryMalformedPayload  Category = "malformed_payload"
	CategoryRemoteUnavailable Category = "remote_unavailable"
	CategoryInvalidWindow     Category = "invalid_window"
	CategoryCanceled          Category = "canceled"
	CategoryUnknownKind       Category = "unknown_kind"
	CategoryDeleteDenied      Category = "delete_denied"
	CategoryDeleteUnsupported Category = "delete_unsupported"
	CategoryInternal          Category = "internal"
)

// Classify maps an error onto its Category. Cancellation wins over every other class.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	case errors.Is(err, ErrInvalidWindow):
		return CategoryInvalidWindow
	case errors.Is(err, ErrUnknownKind):
		return CategoryUnknownKind
	case errors.Is(err, ErrDeleteDenied):
		return CategoryDeleteDenied
	case errors.Is(err, ErrDeleteUnsupported):
		return CategoryDeleteUnsupported
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, ErrMalformedPayload):
		return CategoryMalformedPayload
	case errors.Is(err, ErrRemoteUnavailable):
		return CategoryRemoteUnavailable
	default:
		return CategoryInternal
	}
}

// NewOutcome builds an Outcome, classifying err when present.
func NewOutcome(kind Kind, descriptors []Descriptor, err error) Outcome {
	o := Outcome{Kind: kind, Descriptors: descriptors, Err: err}
	if err != nil {
		o.Descriptors = nil
		o.Category = Classify(err)
		o.Message = err.Error()
	}
	return o
}
