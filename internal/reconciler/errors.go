package reconciler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Phase names one step of a sync run.
type Phase string

const (
	PhaseFetching        Phase = "fetching"
	PhaseValidating      Phase = "validating"
	PhaseSaving          Phase = "saving"
	PhasePushingCheckins Phase = "pushingCheckins"
)

// ErrAlreadyRunning is returned when Run is called while a run is in flight.
var ErrAlreadyRunning = errors.New("sync already running")

// SyncFailureError tags a failed run with the phase it failed in.
type SyncFailureError struct {
	Phase       Phase
	OrganizerID uuid.UUID
	Cause       error
}

func (e *SyncFailureError) Error() string {
	return fmt.Sprintf("sync organizer %s: %s failed: %v", e.OrganizerID, e.Phase, e.Cause)
}

func (e *SyncFailureError) Unwrap() error { return e.Cause }

// FailedPhase returns the phase of a SyncFailureError in err's chain.
func FailedPhase(err error) (Phase, bool) {
	var sfe *SyncFailureError
	if errors.As(err, &sfe) {
		return sfe.Phase, true
	}
	return "", false
}

// ValidationError carries every problem found while validating fetched data.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "\n")
}
