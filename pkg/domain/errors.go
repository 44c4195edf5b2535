package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors usable with errors.Is against the typed errors below.
var (
	ErrInvalidCageLabel   = errors.New("invalid cage label")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidEntry       = errors.New("invalid entry")
)

// ErrNotFound is returned when a record lookup fails.
type ErrNotFound struct {
	ID  string
	Key Key
}

func (e ErrNotFound) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %s not found", e.ID)
	}
	return fmt.Sprintf("record key %d not found", e.Key)
}

// InvalidCageLabelError reports a rejected new-cage label. No state is
// mutated when it is returned.
type InvalidCageLabelError struct {
	Label  string
	Reason string
}

func (e InvalidCageLabelError) Error() string {
	return fmt.Sprintf("invalid cage label %q: %s", e.Label, e.Reason)
}

func (e InvalidCageLabelError) Is(target error) bool { return target == ErrInvalidCageLabel }

// TransitionError reports a transition requested from a state that does not
// allow it.
type TransitionError struct {
	Op     string
	ID     string
	From   string
	Reason string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s: record %s at %q: %s", e.Op, e.ID, e.From, e.Reason)
}

func (e TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// PreconditionFailedError aborts an export before anything is written.
type PreconditionFailedError struct {
	Op     string
	Reason string
	IDs    []string
}

func (e PreconditionFailedError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Reason)
	if len(e.IDs) > 0 {
		msg += " (" + strings.Join(e.IDs, ", ") + ")"
	}
	return msg
}

func (e PreconditionFailedError) Is(target error) bool { return target == ErrPreconditionFailed }

// InvariantViolationError signals a programming error: a record found in
// zero or several index buckets, or in a bucket disagreeing with its location.
type InvariantViolationError struct {
	Detail string
}

func (e InvariantViolationError) Error() string {
	return "index invariant violated: " + e.Detail
}

func (e InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }

// EntryError reports an incomplete or malformed new/edited entry.
type EntryError struct {
	Field  Field
	Reason string
}

func (e EntryError) Error() string {
	return fmt.Sprintf("entry field %s: %s", e.Field, e.Reason)
}

func (e EntryError) Is(target error) bool { return target == ErrInvalidEntry }
