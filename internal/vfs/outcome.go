package vfs

import (
	"errors"
	"sync/atomic"
)

// Outcome classifies how far an operation got before it stopped.
type Outcome int

const (
	// Succeeded means every step completed.
	Succeeded Outcome = iota
	// FailedBeforeMutation means nothing in the store changed.
	FailedBeforeMutation
	// FailedPartial means some objects were written or deleted before the
	// failure. The store may hold duplicates or a partial tree.
	FailedPartial
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case FailedBeforeMutation:
		return "failed_before_mutation"
	case FailedPartial:
		return "failed_partial"
	}
	return "unknown"
}

// OpError reports a failed filesystem operation.
type OpError struct {
	Op      string
	Path    string
	Outcome Outcome
	Err     error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Outcome == FailedPartial {
		msg += " (partially applied)"
	}
	return msg + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// OutcomeOf extracts the outcome from an error returned by FileSystem.
// Errors that did not come from an operation count as FailedBeforeMutation.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Succeeded
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Outcome
	}
	return FailedBeforeMutation
}

// tracker counts store mutations made by one operation. Concurrent
// workers share it.
type tracker struct {
	writes atomic.Int64
}

func (t *tracker) mutated() { t.writes.Add(1) }

func (t *tracker) failure() Outcome {
	if t.writes.Load() > 0 {
		return FailedPartial
	}
	return FailedBeforeMutation
}
