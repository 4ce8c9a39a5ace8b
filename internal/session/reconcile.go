package session

import "time"

// DefaultDriftTolerance is how far the local prediction may stray from a
// server tick before the deadline is corrected. Within tolerance the tick is
// ignored entirely, which keeps the visible countdown smooth through ordinary
// network jitter.
const DefaultDriftTolerance = 2 * time.Second

// Correction is the outcome of comparing a server tick against the local
// prediction.
type Correction struct {
	Correct     bool
	Drift       time.Duration
	NewDeadline time.Time
}

// Reconcile decides whether a server-reported remaining time warrants
// correcting the local deadline. Pure function: no clock reads, no I/O.
func Reconcile(now time.Time, predicted, server, tolerance time.Duration) Correction {
	if tolerance <= 0 {
		tolerance = DefaultDriftTolerance
	}
	drift := predicted - server
	if drift < 0 {
		drift = -drift
	}
	if drift <= tolerance {
		return Correction{Drift: drift}
	}
	return Correction{
		Correct:     true,
		Drift:       drift,
		NewDeadline: now.Add(server),
	}
}
