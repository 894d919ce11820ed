/*
errors.go - Validation error taxonomy for clock submissions

PURPOSE:
  Every rejection is detected synchronously before anything is appended,
  so a rejected submission never leaves a trace in the log. Each rejection
  carries an ErrorKind the client can switch on.

KINDS:
  DUPLICATE_SUBMISSION    previous event less than 60s ago
  PHOTO_REQUIRED          tenant requires a photo, none sent
  FACE_MISMATCH           biometric oracle said no
  ILLEGAL_TRANSITION      sequencer rejected the kind (carries expected kinds)
  OUT_OF_ZONE             coordinate outside every authorized zone
  LOCATION_REQUIRED       geofencing applies but no coordinate was sent
  IDEMPOTENCY_KEY_REUSED  key already used for a different kind
  INVALID_DATE_RANGE      accounting query with from > to
  EMPLOYEE_NOT_FOUND      unknown employee

USAGE:
  var te *attendance.TransitionError
  if errors.As(err, &te) {
      fmt.Println("expected one of", te.Expected)
  }
  kind := attendance.KindOf(err) // "" for non-validation errors
*/
package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/timeclock/generic"
)

type ErrorKind string

const (
	ErrKindDuplicate         ErrorKind = "DUPLICATE_SUBMISSION"
	ErrKindPhotoRequired     ErrorKind = "PHOTO_REQUIRED"
	ErrKindFaceMismatch      ErrorKind = "FACE_MISMATCH"
	ErrKindIllegalTransition ErrorKind = "ILLEGAL_TRANSITION"
	ErrKindOutOfZone         ErrorKind = "OUT_OF_ZONE"
	ErrKindLocationRequired  ErrorKind = "LOCATION_REQUIRED"
	ErrKindKeyReused         ErrorKind = "IDEMPOTENCY_KEY_REUSED"
	ErrKindInvalidDateRange  ErrorKind = "INVALID_DATE_RANGE"
	ErrKindEmployeeNotFound  ErrorKind = "EMPLOYEE_NOT_FOUND"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrPhotoRequired       = errors.New("photo required")
	ErrFaceMismatch        = errors.New("face does not match reference photo")
	ErrIllegalTransition   = errors.New("illegal transition")
	ErrOutOfZone           = errors.New("outside authorized zones")
	ErrLocationRequired    = errors.New("location required")
	ErrKeyReused           = errors.New("idempotency key reused")

	// ErrUnknownKind is malformed input, not a validation rejection.
	ErrUnknownKind = errors.New("unknown event kind")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// DuplicateSubmissionError reports how recent the previous event was.
type DuplicateSubmissionError struct {
	LastEventAt time.Time
	Elapsed     time.Duration
	Cooldown    time.Duration
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("duplicate submission: previous event %s ago (minimum %s)",
		e.Elapsed.Truncate(time.Second), e.Cooldown)
}

func (e *DuplicateSubmissionError) Unwrap() error { return ErrDuplicateSubmission }

// TransitionError tells the client what it should have sent instead.
type TransitionError struct {
	From      State
	Requested generic.EventKind
	Expected  []generic.EventKind
}

func (e *TransitionError) Error() string {
	names := make([]string, len(e.Expected))
	for i, k := range e.Expected {
		names[i] = string(k)
	}
	return fmt.Sprintf("illegal transition %s -> %s: expected %s",
		e.From, e.Requested, strings.Join(names, " or "))
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// OutOfZoneError reports the closest zone for client guidance.
type OutOfZoneError struct {
	NearestZone    string
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *OutOfZoneError) Error() string {
	if e.NearestZone == "" {
		return "outside authorized zones: no zone configured"
	}
	return fmt.Sprintf("outside authorized zones: %.0fm from %q (radius %.0fm)",
		e.DistanceMeters, e.NearestZone, e.RadiusMeters)
}

func (e *OutOfZoneError) Unwrap() error { return ErrOutOfZone }

// KeyReuseError reports an idempotency key sent again with another kind.
type KeyReuseError struct {
	Key       string
	Original  generic.EventKind
	Requested generic.EventKind
}

func (e *KeyReuseError) Error() string {
	return fmt.Sprintf("idempotency key %q already recorded %s, cannot reuse it for %s",
		e.Key, e.Original, e.Requested)
}

func (e *KeyReuseError) Unwrap() error { return ErrKeyReused }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf maps an error to its taxonomy kind, or "" if it is not a
// validation rejection.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateSubmission):
		return ErrKindDuplicate
	case errors.Is(err, ErrPhotoRequired):
		return ErrKindPhotoRequired
	case errors.Is(err, ErrFaceMismatch):
		return ErrKindFaceMismatch
	case errors.Is(err, ErrIllegalTransition):
		return ErrKindIllegalTransition
	case errors.Is(err, ErrOutOfZone):
		return ErrKindOutOfZone
	case errors.Is(err, ErrLocationRequired):
		return ErrKindLocationRequired
	case errors.Is(err, ErrKeyReused):
		return ErrKindKeyReused
	case errors.Is(err, generic.ErrInvalidRange):
		return ErrKindInvalidDateRange
	case errors.Is(err, generic.ErrEmployeeNotFound):
		return ErrKindEmployeeNotFound
	}
	return ""
}

// IsRejection returns true for validation failures the caller can fix by
// resubmitting.
func IsRejection(err error) bool {
	switch KindOf(err) {
	case "", ErrKindEmployeeNotFound, ErrKindInvalidDateRange:
		return false
	}
	return true
}
