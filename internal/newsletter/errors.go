package newsletter

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies transport failures.
type FetchErrorKind string

// Fetch failure kinds. NotFound doubles as the end-of-pagination signal on
// archive listings and is never retried.
const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchHTTPStatus       FetchErrorKind = "http_status"
	FetchConnectionFailed FetchErrorKind = "connection_failed"
	FetchNotFound         FetchErrorKind = "not_found"
)

// FetchError describes a failed page fetch.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a FetchError with kind NotFound.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchNotFound
}

// ParseError signals that a document does not match the expected shape at
// all. Partial shape mismatches degrade gracefully and never raise it.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse: " + e.Reason }

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ConfigError signals an invalid caller-supplied parameter, such as a bad
// publication slug or a non-positive post limit. Always fatal to the run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// StorageError wraps constraint violations and I/O failures from the
// storage layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrRunInFlight is returned when a collection is already running for the
// requested publication slug. Concurrent runs against the same slug are not
// supported.
var ErrRunInFlight = errors.New("collection already in flight for publication")
