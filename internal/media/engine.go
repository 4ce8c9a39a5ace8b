// Package media abstracts the RTC engine a call session joins. The concrete
// SDK is an external collaborator; coordinators only need join/leave/mute and
// remote-presence callbacks.
package media

import (
	"context"
	"fmt"
)

// Track selects which local media track a mute call targets.
type Track string

const (
	TrackAudio Track = "audio"
	TrackVideo Track = "video"
)

// Credentials are the opaque join parameters handed down by signaling. They
// are passed through to the engine unmodified.
type Credentials struct {
	AppID   string
	Token   string
	Channel string
	UID     uint32
	Video   bool
}

// Validate rejects credentials the engine could never join with.
func (c Credentials) Validate() error {
	if c.Token == "" {
		return &JoinError{Reason: "empty token"}
	}
	if c.Channel == "" {
		return &JoinError{Reason: "empty channel name"}
	}
	return nil
}

// JoinError reports a failed or impossible media join. Join failures are not
// retried by the coordinator; retrying a camera or mic failure without user
// action is meaningless.
type JoinError struct {
	Reason string
	Err    error
}

func (e *JoinError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media join: %s: %v", e.Reason, e.Err)
	}
	return "media join: " + e.Reason
}

func (e *JoinError) Unwrap() error { return e.Err }

// Engine is the injected media-engine handle. Instances are typically
// process-wide, shared sequentially across sessions.
type Engine interface {
	// Join connects to a channel. Fails with *JoinError when credentials are
	// malformed or the engine is already joined to a different channel.
	Join(ctx context.Context, creds Credentials) error

	// Leave disconnects. Always safe to call, joined or not.
	Leave(ctx context.Context) error

	// Mute toggles a local track.
	Mute(track Track, muted bool) error

	// OnPeerJoined registers a callback for remote media presence appearing.
	// The returned func removes exactly that callback.
	OnPeerJoined(fn func(id string)) (cancel func())

	// OnPeerLeft registers a callback for remote media presence vanishing.
	OnPeerLeft(fn func(id string)) (cancel func())
}
