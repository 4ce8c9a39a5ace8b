package session

import "time"

// Status is the coordinator lifecycle state.
type Status string

const (
	StatusWaiting      Status = "WAITING"
	StatusMediaPending Status = "MEDIA_PENDING"
	StatusActive       Status = "ACTIVE"
	StatusEnded        Status = "ENDED"
	StatusCancelled    Status = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// TimerState is the authoritative temporal state of one session, owned
// exclusively by the coordinator. Remaining time is always derived from the
// absolute deadline so that interval jitter cannot accumulate drift.
type TimerState struct {
	Status Status

	// DeadlineAt is the absolute time the session expires. Zero until the
	// session activates; moved afterwards only by a reconciliation correction.
	DeadlineAt time.Time

	// ElapsedBase is the elapsed time accounted for as of LastSyncAt.
	ElapsedBase time.Duration

	// LastSyncAt is the local clock time at which DeadlineAt/ElapsedBase were
	// last set from an authoritative server message.
	LastSyncAt time.Time
}

// Remaining derives the time left until the deadline, clamped at zero.
func (s *TimerState) Remaining(now time.Time) time.Duration {
	if s.DeadlineAt.IsZero() {
		return 0
	}
	remaining := s.DeadlineAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Elapsed derives total elapsed time. While the session is active the base is
// extended by wall time since the last sync; otherwise the base stands alone.
func (s *TimerState) Elapsed(now time.Time) time.Duration {
	if s.Status != StatusActive || s.LastSyncAt.IsZero() {
		return s.ElapsedBase
	}
	return s.ElapsedBase + now.Sub(s.LastSyncAt)
}

// MediaJoinState tracks media-engine readiness. It is kept apart from
// TimerState because the two are only loosely coupled: depending on the flow,
// the timer may start before or after the remote peer's media arrives.
type MediaJoinState struct {
	LocalJoined bool
	RemotePeer  string
}

// Snapshot is the observer-facing view of a session. Observers receive one
// snapshot per state change, not one per clock tick; UIs poll Remaining on
// their own repaint cadence.
type Snapshot struct {
	SessionID        string `json:"session_id"`
	Status           Status `json:"status"`
	RemainingSeconds int    `json:"remaining_seconds"`
	ElapsedSeconds   int    `json:"elapsed_seconds"`
	MediaJoined      bool   `json:"media_joined"`
	MediaFailed      bool   `json:"media_failed"`
	RemotePeer       string `json:"remote_peer,omitempty"`
	EndReason        string `json:"end_reason,omitempty"`
}
