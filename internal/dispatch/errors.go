package dispatch

import (
	"errors"
	"fmt"
)

// ErrNotParticipant is the authorization failure: the actor is neither the
// job's customer, its bound provider, nor an admin.
var ErrNotParticipant = errors.New("actor is not a participant of this job")

var (
	ErrInvalidETA  = errors.New("estimated arrival must be between 1 and 180 minutes")
	ErrInvalidCost = errors.New("actual cost must be greater than zero")
)

// StateConflictError reports a transition guard failure. Callers must not
// retry; they re-fetch and decide.
type StateConflictError struct {
	Current   JobStatus
	Requested JobStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot transition job from %q to %q", e.Current, e.Requested)
}

type RejectReason string

const (
	RejectNotPending    RejectReason = "not_pending"
	RejectAlreadyBound  RejectReason = "already_bound"
	RejectWindowExpired RejectReason = "window_expired"
)

// RejectedError is returned by Accept when the conditional bind updated zero
// rows. The reason distinguishes why the job was not claimable.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("accept rejected: %s", e.Reason)
}
