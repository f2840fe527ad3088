// Package grerr defines the error taxonomy shared by every layer of the
// aggregation engine: a fixed set of kinds, not a fixed set of Go types,
// so callers switch on Kind() rather than type-asserting concrete errors.
package grerr

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Kind identifies which failure mode an Error represents.
type Kind int

const (
	// InvalidRequest means the caller supplied unparseable or missing parameters.
	InvalidRequest Kind = iota
	// UIDInvalid means a UID string did not match either grammar.
	UIDInvalid
	// UIDUnknown means a UID parsed fine but no record exists for it.
	UIDUnknown
	// AnimeNotFound means a title/group lookup produced nothing.
	AnimeNotFound
	// EpisodeNotFound means the requested episode index has no record.
	EpisodeNotFound
	// StreamNotFound means the requested stream index is out of range.
	StreamNotFound
	// SourceNotFound means no registered source extractor matches an id.
	SourceNotFound
	// FetchError means an HTTP/network failure occurred.
	FetchError
	// ExtractError means a source or stream extractor could not parse its input.
	ExtractError
	// IncompatibleMedia means group construction was attempted over inconsistent inputs.
	IncompatibleMedia
	// Internal is the catch-all kind for unexpected failures; errors built by Internalf carry a correlation id,
	// while KindOf also reports Internal for plain errors, which carry none.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case UIDInvalid:
		return "uid_invalid"
	case UIDUnknown:
		return "uid_unknown"
	case AnimeNotFound:
		return "anime_not_found"
	case EpisodeNotFound:
		return "episode_not_found"
	case StreamNotFound:
		return "stream_not_found"
	case SourceNotFound:
		return "source_not_found"
	case FetchError:
		return "fetch_error"
	case ExtractError:
		return "extract_error"
	case IncompatibleMedia:
		return "incompatible_media"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the concrete error value carried through the engine. It wraps
// an underlying cause (if any) with pkg/errors so a stack trace is
// attached at the point the Kind was first assigned.
type Error struct {
	kind          Kind
	msg           string
	cause         error
	correlationID string
	// Status, when nonzero, is the HTTP status a FetchError observed.
	Status int
}

func (e *Error) Error() string {
	if e.correlationID != "" {
		return fmt.Sprintf("%s: %s [%s]", e.kind, e.msg, e.correlationID)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind reports which failure mode this error represents.
func (e *Error) Kind() Kind { return e.kind }

// CorrelationID returns the id stamped onto Internal errors, or "".
func (e *Error) CorrelationID() string { return e.correlationID }

// New builds a kinded error with a message, wrapped for a stack trace.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: errors.New(msg)}
}

// Wrap attaches a Kind to an existing cause, preserving its stack trace
// if it already carries one (pkg/errors convention).
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: errors.Wrap(cause, msg)}
}

// Internalf produces a generic Internal error stamped with a fresh
// correlation id, per the propagation policy: "all other exceptions
// become a generic internal error with a correlation id in logs".
func Internalf(cause error, format string, args ...interface{}) *Error {
	return &Error{
		kind:          Internal,
		msg:           fmt.Sprintf(format, args...),
		cause:         errors.WithStack(cause),
		correlationID: uuid.NewString(),
	}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or Internal if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Internal
}
