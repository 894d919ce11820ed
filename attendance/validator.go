/*
validator.go - Clock event validation and append

PURPOSE:
  Decides whether a submission is a legal, authorized continuation of the
  employee's day and, if so, appends exactly one ClockEvent.

GATES (in order, all must pass):
  1. Duplicate guard      - previous event >= 60s ago
  2. Photo required       - tenant policy
  3. Biometric oracle     - only when a photo was sent and a reference exists
  4. Event sequencer      - strict or flexible flow
  5. Geofence             - home zone, then extra zones

  A rejection at any gate leaves the log untouched.

REVERSE GEOCODING:
  Started in the background as soon as the submission arrives and collected
  before the per-employee lock is taken. A failure or timeout only leaves
  the address empty.

IDEMPOTENCY:
  A retried submission with the same key gets the original event back,
  unless the retry asks for a different kind (IDEMPOTENCY_KEY_REUSED).

BIOMETRIC FAILURES:
  An oracle error or timeout is logged and treated as a pass. Attendance
  recording must not stop because the face service is down. A definite
  "no match" is a FACE_MISMATCH.

CONCURRENCY:
  The read-decide-append section runs under a per-employee lock so a second
  concurrent submission observes the first one's event.

SEE ALSO:
  - sequencer.go, guard.go, geofence.go: the individual gates
  - generic/ledger.go: the append-only log
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/timeclock/generic"
)

// Default timeouts for the best-effort collaborators.
const (
	DefaultBiometricTimeout = 5 * time.Second
	DefaultGeocodeTimeout   = 2 * time.Second
)

// Submission is one SubmitClockEvent request.
type Submission struct {
	EmployeeID     generic.EmployeeID
	Kind           generic.EventKind
	Coordinate     *generic.Coordinate
	Photo          []byte
	DeviceTime     *time.Time
	IdempotencyKey string
}

// Receipt is the outcome of an accepted submission.
type Receipt struct {
	Event       generic.ClockEvent
	ZoneMatched string
	Replayed    bool // answered from a previous submission with the same key
}

// Validator composes the gates and appends accepted events.
type Validator struct {
	Ledger    generic.Ledger
	Directory Directory

	// Optional collaborators. A nil value disables the step.
	Photos   ReferencePhotos
	Faces    FaceMatcher
	Geocoder Geocoder

	BiometricTimeout time.Duration
	GeocodeTimeout   time.Duration

	Locks *KeyedMutex
	Now   func() time.Time
	NewID func() generic.EventID
}

// NewValidator wires the mandatory dependencies with defaults.
func NewValidator(ledger generic.Ledger, dir Directory) *Validator {
	return &Validator{
		Ledger:           ledger,
		Directory:        dir,
		BiometricTimeout: DefaultBiometricTimeout,
		GeocodeTimeout:   DefaultGeocodeTimeout,
		Locks:            NewKeyedMutex(),
		Now:              time.Now,
		NewID:            func() generic.EventID { return generic.EventID(uuid.NewString()) },
	}
}

// Submit validates sub and appends the resulting event.
func (v *Validator) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if !sub.Kind.Valid() {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnknownKind, sub.Kind)
	}

	pendingAddress := v.resolveAddress(ctx, sub.Coordinate)

	emp, err := v.Directory.Employee(ctx, sub.EmployeeID)
	if err != nil {
		return Receipt{}, err
	}
	policy, err := v.Directory.TenantPolicy(ctx, emp.TenantID)
	if err != nil {
		return Receipt{}, err
	}

	// Never wait on the geocoder while holding the employee's lock.
	address := <-pendingAddress

	unlock := v.Locks.Lock(emp.ID)
	defer unlock()

	if replayed, err := v.Ledger.Replay(ctx, emp.ID, sub.IdempotencyKey); err != nil {
		return Receipt{}, err
	} else if replayed != nil {
		return replayReceipt(*replayed, sub)
	}

	now := v.Now()
	last, err := v.Ledger.LastEvent(ctx, emp.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to load last event: %w", err)
	}

	// 1. Duplicate guard
	if err := CheckDuplicate(last, now); err != nil {
		return Receipt{}, err
	}

	// 2. Photo required
	if policy.PhotoRequired && len(sub.Photo) == 0 {
		return Receipt{}, ErrPhotoRequired
	}

	// 3. Biometric oracle
	if err := v.checkFace(ctx, emp.ID, sub.Photo); err != nil {
		return Receipt{}, err
	}

	// 4. Sequencer
	loc := policy.Location()
	today := generic.DateIn(now, loc)
	state := NoEventToday
	if last != nil {
		state = DeriveState([]generic.ClockEvent{*last}, today, loc)
	}
	if err := CheckTransition(state, sub.Kind, policy.StrictFlow); err != nil {
		return Receipt{}, err
	}

	// 5. Geofence
	zone, err := MatchZone(sub.Coordinate, emp.Zones, policy.GeofenceEnforced)
	if err != nil {
		return Receipt{}, err
	}

	ev := generic.ClockEvent{
		ID:             v.NewID(),
		TenantID:       emp.TenantID,
		EmployeeID:     emp.ID,
		Timestamp:      now,
		Kind:           sub.Kind,
		Coordinate:     sub.Coordinate,
		ZoneMatched:    zone,
		PhotoProvided:  len(sub.Photo) > 0,
		Address:        address,
		DeviceTime:     sub.DeviceTime,
		IdempotencyKey: sub.IdempotencyKey,
	}
	if err := v.Ledger.Append(ctx, ev); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			if replayed, rerr := v.Ledger.Replay(ctx, emp.ID, sub.IdempotencyKey); rerr == nil && replayed != nil {
				return replayReceipt(*replayed, sub)
			}
		}
		return Receipt{}, err
	}

	log.Printf("[Validator] accepted %s for %s at %s (zone=%s)",
		ev.Kind, ev.EmployeeID, ev.Timestamp.In(loc).Format(time.RFC3339), zone)
	return Receipt{Event: ev, ZoneMatched: zone}, nil
}

// checkFace runs the biometric oracle with a bounded timeout. Only a
// definite mismatch rejects.
func (v *Validator) checkFace(ctx context.Context, id generic.EmployeeID, photo []byte) error {
	if len(photo) == 0 || v.Photos == nil || v.Faces == nil {
		return nil
	}
	ref, err := v.Photos.ReferencePhoto(ctx, id)
	if err != nil {
		log.Printf("[Validator] reference photo lookup failed for %s, skipping face check: %v", id, err)
		return nil
	}
	if len(ref) == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, v.timeout(v.BiometricTimeout, DefaultBiometricTimeout))
	defer cancel()
	matched, err := v.Faces.Compare(cctx, ref, photo)
	if err != nil {
		log.Printf("[Validator] biometric oracle unavailable for %s, soft pass: %v", id, err)
		return nil
	}
	if !matched {
		return ErrFaceMismatch
	}
	return nil
}

// replayReceipt answers a retried submission with its original event. A key
// reused for a different kind is a client bug, not a retry.
func replayReceipt(original generic.ClockEvent, sub Submission) (Receipt, error) {
	if original.Kind != sub.Kind {
		return Receipt{}, &KeyReuseError{Key: sub.IdempotencyKey, Original: original.Kind, Requested: sub.Kind}
	}
	return Receipt{Event: original, ZoneMatched: original.ZoneMatched, Replayed: true}, nil
}

// resolveAddress starts the reverse lookup in the background. The channel
// always yields exactly one value, "" when there is nothing to resolve or
// the lookup failed.
func (v *Validator) resolveAddress(ctx context.Context, c *generic.Coordinate) <-chan string {
	out := make(chan string, 1)
	if c == nil || v.Geocoder == nil {
		out <- ""
		return out
	}
	coord := *c
	go func() {
		cctx, cancel := context.WithTimeout(ctx, v.timeout(v.GeocodeTimeout, DefaultGeocodeTimeout))
		defer cancel()
		addr, err := v.Geocoder.Reverse(cctx, coord)
		if err != nil {
			log.Printf("[Validator] reverse geocoding failed for %.6f,%.6f: %v", coord.Lat, coord.Lon, err)
			addr = ""
		}
		out <- addr
	}()
	return out
}

func (v *Validator) timeout(configured, fallback time.Duration) time.Duration {
	if configured <= 0 {
		return fallback
	}
	return configured
}
