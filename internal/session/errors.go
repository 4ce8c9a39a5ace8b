package session

import "errors"

var (
	// ErrSignalingUnavailable means the signaling channel rejected the
	// initial emits. The coordinator queues nothing; the caller retries
	// Start once the channel's own reconnect logic has healed it.
	ErrSignalingUnavailable = errors.New("signaling channel unavailable")

	// ErrSyncTimeout means the sync_timer ack never arrived. The coordinator
	// stays in WAITING; Resync may be invoked to try again.
	ErrSyncTimeout = errors.New("timer sync timed out")

	// ErrDisposed is returned from operations on a disposed coordinator.
	ErrDisposed = errors.New("session coordinator disposed")
)
