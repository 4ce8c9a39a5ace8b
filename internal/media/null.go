package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// NullEngine is an Engine with no SDK behind it. It enforces the Engine
// contract (credential validation, single-channel occupancy) and fans out
// simulated peer events, which makes it the engine for chat flows, the
// simulator binary, and tests.
type NullEngine struct {
	mu      sync.Mutex
	channel string
	muted   map[Track]bool

	peerSeq    int
	peerJoined map[int]func(id string)
	peerLeft   map[int]func(id string)
}

// NewNullEngine returns an idle engine.
func NewNullEngine() *NullEngine {
	return &NullEngine{
		muted:      make(map[Track]bool),
		peerJoined: make(map[int]func(id string)),
		peerLeft:   make(map[int]func(id string)),
	}
}

// Join validates and records the channel occupancy.
func (e *NullEngine) Join(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channel != "" && e.channel != creds.Channel {
		return &JoinError{Reason: "already joined to channel " + e.channel}
	}
	e.channel = creds.Channel

	log.Debug().
		Str("channel", creds.Channel).
		Uint32("uid", creds.UID).
		Bool("video", creds.Video).
		Msg("null media engine joined")
	return nil
}

// Leave clears channel occupancy. No-op when not joined.
func (e *NullEngine) Leave(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channel == "" {
		return nil
	}
	log.Debug().Str("channel", e.channel).Msg("null media engine left")
	e.channel = ""
	return nil
}

// Mute records the track state.
func (e *NullEngine) Mute(track Track, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted[track] = muted
	return nil
}

// OnPeerJoined registers a remote-presence callback.
func (e *NullEngine) OnPeerJoined(fn func(id string)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.peerSeq
	e.peerSeq++
	e.peerJoined[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.peerJoined, id)
	}
}

// OnPeerLeft registers a remote-departure callback.
func (e *NullEngine) OnPeerLeft(fn func(id string)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.peerSeq
	e.peerSeq++
	e.peerLeft[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.peerLeft, id)
	}
}

// Joined reports the currently occupied channel, empty when idle.
func (e *NullEngine) Joined() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel
}

// SimulatePeerJoined drives registered peer callbacks, for harnesses.
func (e *NullEngine) SimulatePeerJoined(id string) {
	e.mu.Lock()
	fns := make([]func(string), 0, len(e.peerJoined))
	for _, fn := range e.peerJoined {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

// SimulatePeerLeft drives registered peer-left callbacks, for harnesses.
func (e *NullEngine) SimulatePeerLeft(id string) {
	e.mu.Lock()
	fns := make([]func(string), 0, len(e.peerLeft))
	for _, fn := range e.peerLeft {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}
