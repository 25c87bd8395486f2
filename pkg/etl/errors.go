package etl

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Structural errors. These are the only errors that escape a stage.
var (
	// ErrInvalidConcurrency is returned when MaxConcurrency is not positive.
	ErrInvalidConcurrency = errors.New("max concurrency must be positive")

	// ErrNilPrefixes is returned when the pipeline is handed a nil prefix set.
	ErrNilPrefixes = errors.New("prefix set is nil")

	// ErrInvalidChunkSize is returned when prefixes are partitioned with a non-positive size.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrIterationDone is returned when stepping a terminal iteration state.
	ErrIterationDone = errors.New("iteration already complete")

	// ErrInvalidState is returned when an iteration state breaks its invariants.
	ErrInvalidState = errors.New("invalid iteration state")
)

// Class is the category an item failure is counted under.
type Class string

const (
	// ClassClient covers "no such entity" and unreachable/rejecting remote service.
	ClassClient Class = "client"

	// ClassParser covers fetched payloads that are not a valid schedule document.
	ClassParser Class = "parser"

	// ClassUnhandled covers every failure mode nobody anticipated.
	ClassUnhandled Class = "unhandled"
)

// Reason is the closed set of failure variants a directory collaborator reports.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonCommunication Reason = "communication"
	ReasonParse         Reason = "parse"
)

// EntityKind names the kind of directory entity a schedule belongs to.
type EntityKind string

const (
	KindGroup   EntityKind = "group"
	KindTeacher EntityKind = "teacher"
)

// Error is the tagged failure returned by directory lookups.
type Error struct {
	Reason Reason
	Kind   EntityKind
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	subject := e.Key
	if e.Kind != "" {
		subject = fmt.Sprintf("%s %q", e.Kind, e.Key)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, subject, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, subject)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports that the directory has no entity of the given kind under name.
func NotFound(kind EntityKind, name string) error {
	return &Error{Reason: ReasonNotFound, Kind: kind, Key: name}
}

// Communication reports that the remote service was unreachable or rejected the request.
func Communication(key string, err error) error {
	return &Error{Reason: ReasonCommunication, Key: key, Err: err}
}

// Parse reports that a fetched document could not be read as a schedule.
func Parse(key string, err error) error {
	return &Error{Reason: ReasonParse, Key: key, Err: err}
}

// ReasonOf extracts the failure variant from err, if it carries one.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if !errors.As(err, &e) || e == nil || e.Reason == "" {
		return "", false
	}
	return e.Reason, true
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	r, ok := ReasonOf(err)
	return ok && r == ReasonNotFound
}

// Classify maps an item failure to its counting class. Most specific variant wins:
// not-found, then communication, then parse. Everything else is unhandled and
// reported at fatal severity with the work item's key.
func Classify(err error, key string, logger zerolog.Logger) Class {
	reason, ok := ReasonOf(err)
	switch {
	case ok && reason == ReasonNotFound:
		return ClassClient
	case ok && reason == ReasonCommunication:
		return ClassClient
	case ok && reason == ReasonParse:
		return ClassParser
	}

	logger.WithLevel(zerolog.FatalLevel).
		Err(err).
		Str("key", key).
		Msg("Unhandled failure while processing work item")
	return ClassUnhandled
}
