// Package session implements the session timer coordinator: the single
// authority for a consultation's temporal state, bridging signaling events
// and media-engine actions into one consistent observable state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vaidiktalk/sessioncore/internal/media"
	"github.com/vaidiktalk/sessioncore/internal/signaling"
)

// Observer receives one snapshot per state change. The initial snapshot is
// delivered synchronously on subscription.
type Observer func(Snapshot)

// Config tunes one coordinator. The zero value is usable; defaults are filled
// in by New.
type Config struct {
	// DriftTolerance is the reconciliation threshold. Server ticks within
	// tolerance of the local prediction are ignored.
	DriftTolerance time.Duration

	// SyncTimeout bounds the wait for the sync_timer ack.
	SyncTimeout time.Duration

	// DeriveInterval is the cadence of the local re-derivation check that
	// notices the countdown crossing zero. It never mutates authoritative
	// state.
	DeriveInterval time.Duration

	// RequireMediaJoin overrides the kind's default gating when non-nil.
	RequireMediaJoin *bool

	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock
}

func (c Config) withDefaults() Config {
	if c.DriftTolerance <= 0 {
		c.DriftTolerance = DefaultDriftTolerance
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 5 * time.Second
	}
	if c.DeriveInterval <= 0 {
		c.DeriveInterval = time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Coordinator owns one session's lifecycle: waiting → media-pending → active
// → ended/cancelled. It reconciles the local countdown against server ticks,
// sequences the media join, and exposes status plus derived remaining/elapsed
// time to observers.
type Coordinator struct {
	handle Handle
	events eventTable
	signal signaling.Port
	engine media.Engine
	clock  clockwork.Clock
	cfg    Config

	mu           sync.Mutex
	state        TimerState
	mediaState   MediaJoinState
	timerStarted bool
	pendingMax   time.Duration
	mediaFailed  bool
	endReason    string
	zeroNotified bool

	started  bool
	ending   bool
	disposed bool

	subs        []signaling.Subscription
	peerCancels []func()

	observers map[uint64]Observer
	obsSeq    uint64

	tickerStop chan struct{}
	tickerDone chan struct{}
}

// New builds a coordinator in WAITING. Start must be called to register
// listeners and request the initial sync.
func New(handle Handle, signal signaling.Port, engine media.Engine, cfg Config) (*Coordinator, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	if signal == nil {
		return nil, errors.New("session coordinator: nil signaling port")
	}
	if engine == nil {
		return nil, errors.New("session coordinator: nil media engine")
	}

	events := eventsForKind(handle.Kind)
	cfg = cfg.withDefaults()
	if cfg.RequireMediaJoin != nil {
		events.requireMediaJoin = *cfg.RequireMediaJoin
	}

	return &Coordinator{
		handle:    handle,
		events:    events,
		signal:    signal,
		engine:    engine,
		clock:     cfg.Clock,
		cfg:       cfg,
		state:     TimerState{Status: StatusWaiting},
		observers: make(map[uint64]Observer),
	}, nil
}

// Start registers signaling listeners, announces presence and requests the
// authoritative timer state. Idempotent: a second Start on a started
// coordinator is a no-op, so a replayed Start after transport reconnect is
// harmless.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true

	c.subs = append(c.subs, c.signal.On(EventTimerStart, c.onTimerStart))
	c.subs = append(c.subs, c.signal.On(EventTimerTick, c.onTimerTick))
	for _, ev := range c.events.ended {
		event := ev
		c.subs = append(c.subs, c.signal.On(event, func(payload json.RawMessage) {
			c.onEnded(event, payload)
		}))
	}
	if c.events.credentials != "" {
		c.subs = append(c.subs, c.signal.On(c.events.credentials, c.onCredentials))
	}
	c.peerCancels = append(c.peerCancels,
		c.engine.OnPeerJoined(c.onPeerJoined),
		c.engine.OnPeerLeft(c.onPeerLeft),
	)

	stop := make(chan struct{})
	done := make(chan struct{})
	c.tickerStop = stop
	c.tickerDone = done
	go c.deriveLoop(stop, done)
	c.mu.Unlock()

	if err := c.announce(); err != nil {
		close(stop)
		<-done
		c.teardownListeners()
		c.mu.Lock()
		c.started = false
		c.tickerStop = nil
		c.tickerDone = nil
		c.mu.Unlock()
		return err
	}

	go c.syncTimer(ctx)

	log.Info().
		Str("session_id", c.handle.SessionID).
		Str("kind", string(c.handle.Kind)).
		Msg("session coordinator started")
	return nil
}

// Resync re-announces presence and requests a fresh authoritative state. The
// sole recovery path after the app returns to foreground or the transport
// reconnects.
func (c *Coordinator) Resync(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if !c.started || c.state.Status.Terminal() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.announce(); err != nil {
		return err
	}
	go c.syncTimer(ctx)
	return nil
}

func (c *Coordinator) announce() error {
	err := c.signal.Emit(EventJoinSession, JoinSessionPayload{
		SessionID: c.handle.SessionID,
		UserID:    c.handle.UserID,
		Role:      c.handle.Role,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignalingUnavailable, err)
	}
	return nil
}

func (c *Coordinator) syncTimer(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SyncTimeout)
	defer cancel()

	reply, err := c.signal.Request(ctx, EventSyncTimer, SyncTimerPayload{SessionID: c.handle.SessionID})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrSyncTimeout
		}
		log.Warn().Err(err).Str("session_id", c.handle.SessionID).Msg("timer sync failed, staying in WAITING")
		return
	}

	var parsed SyncTimerReply
	if err := json.Unmarshal(reply, &parsed); err != nil {
		log.Warn().Err(err).Str("session_id", c.handle.SessionID).Msg("malformed sync_timer reply")
		return
	}
	if !parsed.Success {
		// No active session server-side; WAITING until an event arrives.
		return
	}
	c.applySync(parsed.Data)
}

func (c *Coordinator) applySync(data SyncTimerData) {
	c.mu.Lock()
	if c.disposed || c.state.Status.Terminal() {
		c.mu.Unlock()
		return
	}

	switch data.Status {
	case "active", "running":
		now := c.clock.Now()
		c.timerStarted = true
		c.state.Status = StatusActive
		c.state.DeadlineAt = now.Add(time.Duration(data.RemainingSeconds) * time.Second)
		c.state.ElapsedBase = time.Duration(data.ElapsedSeconds) * time.Second
		c.state.LastSyncAt = now
		c.zeroNotified = data.RemainingSeconds <= 0
		snap, obs := c.publishLocked()
		c.mu.Unlock()
		c.deliver(snap, obs)
		log.Info().
			Str("session_id", c.handle.SessionID).
			Int("remaining_sec", data.RemainingSeconds).
			Int("elapsed_sec", data.ElapsedSeconds).
			Msg("timer state recovered from sync")
	case "ended":
		c.mu.Unlock()
		c.terminate("sync_reported_ended")
	default:
		c.mu.Unlock()
	}
}

// OnSnapshot subscribes an observer. The current snapshot is delivered
// immediately; the returned func unsubscribes. After Dispose no callback
// fires again.
func (c *Coordinator) OnSnapshot(fn Observer) func() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return func() {}
	}
	id := c.obsSeq
	c.obsSeq++
	c.observers[id] = fn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	fn(snap)
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current observable state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Remaining derives the time left from the absolute deadline. UIs poll this
// on their own repaint cadence.
func (c *Coordinator) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Remaining(c.clock.Now())
}

// Elapsed derives total elapsed session time.
func (c *Coordinator) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Elapsed(c.clock.Now())
}

// Mute toggles a local media track for the session.
func (c *Coordinator) Mute(track media.Track, muted bool) error {
	return c.engine.Mute(track, muted)
}

// RequestEnd asks the server to terminate the session, optimistically
// transitions to ENDED and leaves media. Safe to call repeatedly and safe to
// race an inbound terminal event: whichever arrives first wins.
func (c *Coordinator) RequestEnd(ctx context.Context, reason string) error {
	snap, obs, first := c.endLocked(reason)
	if !first {
		return nil
	}
	c.deliver(snap, obs)

	err := c.signal.Emit(c.events.endRequest, EndRequestPayload{
		SessionID: c.handle.SessionID,
		UserID:    c.handle.UserID,
		Reason:    reason,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", c.handle.SessionID).Msg("end request emit failed")
	}
	c.leaveMedia(ctx)

	log.Info().
		Str("session_id", c.handle.SessionID).
		Str("reason", reason).
		Msg("session end requested")
	return err
}

// Dispose detaches every listener this coordinator added, stops the local
// derivation ticker synchronously and leaves media. A dispose before the
// session ever activated transitions to CANCELLED with one final snapshot.
// Exactly one Dispose does work; the rest are no-ops.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true

	var snap Snapshot
	var obs []Observer
	if !c.state.Status.Terminal() && c.state.Status != StatusActive {
		c.state.Status = StatusCancelled
		snap, obs = c.publishLocked()
	}
	c.observers = make(map[uint64]Observer)
	stop, done := c.tickerStop, c.tickerDone
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	c.teardownListeners()
	for _, fn := range obs {
		fn(snap)
	}
	c.leaveMedia(context.Background())

	log.Debug().Str("session_id", c.handle.SessionID).Msg("session coordinator disposed")
}

// Disposed reports whether Dispose has run.
func (c *Coordinator) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// --- signaling handlers ---

func (c *Coordinator) onTimerStart(payload json.RawMessage) {
	var p TimerStartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Msg("malformed timer_start payload")
		return
	}
	if p.SessionID != "" && p.SessionID != c.handle.SessionID {
		return
	}

	c.mu.Lock()
	if c.disposed || c.state.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.timerStarted = true
	c.pendingMax = time.Duration(p.MaxDurationSeconds) * time.Second

	needJoin := p.hasCredentials() && c.handle.Kind.HasMedia() && !c.mediaState.LocalJoined
	snap, obs, changed := c.maybeActivateLocked()
	c.mu.Unlock()

	if changed {
		c.deliver(snap, obs)
	}
	if needJoin {
		// Call-flow variant where credentials ride on timer_start.
		c.joinMedia(media.Credentials{
			AppID:   p.AgoraAppID,
			Token:   p.AgoraToken,
			Channel: p.AgoraChannelName,
			UID:     p.AgoraUID,
			Video:   c.handle.Kind.Video(),
		})
	}

	log.Info().
		Str("session_id", c.handle.SessionID).
		Int("max_duration_sec", p.MaxDurationSeconds).
		Msg("timer_start received")
}

func (c *Coordinator) onTimerTick(payload json.RawMessage) {
	var p TimerTickPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Msg("malformed timer_tick payload")
		return
	}
	if p.SessionID != "" && p.SessionID != c.handle.SessionID {
		return
	}

	c.mu.Lock()
	// A terminal event absolutely overrides tick processing, whatever the
	// arrival order on the wire.
	if c.disposed || c.state.Status.Terminal() {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	server := time.Duration(p.RemainingSeconds) * time.Second

	if c.state.Status != StatusActive {
		// Ungated flows treat a live tick as an implicit start: the server
		// clock is already running, so adopt it.
		if c.events.requireMediaJoin || p.RemainingSeconds <= 0 {
			c.mu.Unlock()
			return
		}
		c.timerStarted = true
		c.state.Status = StatusActive
		c.state.DeadlineAt = now.Add(server)
		c.state.ElapsedBase = time.Duration(p.ElapsedSeconds) * time.Second
		c.state.LastSyncAt = now
		c.zeroNotified = false
		snap, obs := c.publishLocked()
		c.mu.Unlock()
		c.deliver(snap, obs)
		return
	}

	predicted := c.state.Remaining(now)
	corr := Reconcile(now, predicted, server, c.cfg.DriftTolerance)
	if !corr.Correct {
		c.mu.Unlock()
		return
	}

	c.state.DeadlineAt = corr.NewDeadline
	c.state.ElapsedBase = time.Duration(p.ElapsedSeconds) * time.Second
	c.state.LastSyncAt = now
	if p.RemainingSeconds > 0 {
		c.zeroNotified = false
	}
	snap, obs := c.publishLocked()
	c.mu.Unlock()
	c.deliver(snap, obs)

	log.Debug().
		Str("session_id", c.handle.SessionID).
		Dur("drift", corr.Drift).
		Int("server_remaining_sec", p.RemainingSeconds).
		Msg("countdown corrected from server tick")
}

func (c *Coordinator) onCredentials(payload json.RawMessage) {
	var p CredentialsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Msg("malformed call_credentials payload")
		return
	}
	if p.SessionID != "" && p.SessionID != c.handle.SessionID {
		return
	}

	c.mu.Lock()
	if c.disposed || c.state.Status.Terminal() || c.mediaState.LocalJoined {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.joinMedia(media.Credentials{
		AppID:   p.AgoraAppID,
		Token:   p.AgoraToken,
		Channel: p.AgoraChannelName,
		UID:     p.AgoraUID,
		Video:   c.handle.Kind.Video(),
	})
}

// joinMedia runs the media join sequence: transition to MEDIA_PENDING, join
// with the pass-through credentials, announce readiness, then activate if the
// gate is satisfied. Called without the lock held.
func (c *Coordinator) joinMedia(creds media.Credentials) {
	c.mu.Lock()
	if c.disposed || c.state.Status.Terminal() || c.mediaState.LocalJoined {
		c.mu.Unlock()
		return
	}
	if c.state.Status == StatusWaiting {
		c.state.Status = StatusMediaPending
		snap, obs := c.publishLocked()
		c.mu.Unlock()
		c.deliver(snap, obs)
	} else {
		c.mu.Unlock()
	}

	err := c.engine.Join(context.Background(), creds)

	c.mu.Lock()
	if c.disposed || c.state.Status.Terminal() {
		c.mu.Unlock()
		// The session ended while the join was in flight; the terminal leave
		// ran before the engine was joined, so leave again here.
		if err == nil {
			c.leaveMedia(context.Background())
		}
		return
	}
	if err != nil {
		// Not retried: a credentials or device failure needs user action or
		// a fresh credentials event, not a loop.
		c.mediaFailed = true
		snap, obs := c.publishLocked()
		c.mu.Unlock()
		c.deliver(snap, obs)
		log.Error().Err(err).Str("session_id", c.handle.SessionID).Msg("media join failed")
		return
	}

	c.mediaState.LocalJoined = true
	c.mediaFailed = false
	snap, obs, activated := c.maybeActivateLocked()
	if !activated {
		snap, obs = c.publishLocked()
	}
	c.mu.Unlock()

	if emitErr := c.signal.Emit(EventMediaReady, MediaReadyPayload{
		SessionID: c.handle.SessionID,
		Role:      c.handle.Role,
	}); emitErr != nil {
		log.Warn().Err(emitErr).Str("session_id", c.handle.SessionID).Msg("media ready emit failed")
	}
	c.deliver(snap, obs)

	log.Info().
		Str("session_id", c.handle.SessionID).
		Str("channel", creds.Channel).
		Msg("local media joined")
}

func (c *Coordinator) onEnded(event string, payload json.RawMessage) {
	var p EndedPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Warn().Err(err).Str("event", event).Msg("malformed terminal payload")
		}
	}
	if p.SessionID != "" && p.SessionID != c.handle.SessionID {
		return
	}
	reason := p.Reason
	if reason == "" {
		reason = event
	}
	c.terminate(reason)
}

func (c *Coordinator) terminate(reason string) {
	snap, obs, first := c.endLocked(reason)
	if !first {
		return
	}
	c.deliver(snap, obs)
	c.leaveMedia(context.Background())

	log.Info().
		Str("session_id", c.handle.SessionID).
		Str("reason", reason).
		Msg("session ended")
}

// endLocked performs the terminal transition once. Returns false when a
// previous end (local or inbound) already won the race.
func (c *Coordinator) endLocked(reason string) (Snapshot, []Observer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.ending || c.state.Status.Terminal() {
		return Snapshot{}, nil, false
	}
	c.ending = true
	if c.state.Status == StatusActive {
		// Fold the wall time since the last sync into the base so the terminal
		// snapshot reports the full elapsed duration, then freeze it.
		now := c.clock.Now()
		c.state.ElapsedBase += now.Sub(c.state.LastSyncAt)
		c.state.LastSyncAt = now
	}
	c.state.Status = StatusEnded
	c.endReason = reason
	snap, obs := c.publishLocked()
	return snap, obs, true
}

func (c *Coordinator) onPeerJoined(id string) {
	c.mu.Lock()
	if c.disposed || c.state.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.mediaState.RemotePeer = id
	snap, obs := c.publishLocked()
	c.mu.Unlock()
	c.deliver(snap, obs)
}

func (c *Coordinator) onPeerLeft(id string) {
	c.mu.Lock()
	if c.disposed || c.state.Status.Terminal() || c.mediaState.RemotePeer != id {
		c.mu.Unlock()
		return
	}
	c.mediaState.RemotePeer = ""
	snap, obs := c.publishLocked()
	c.mu.Unlock()
	c.deliver(snap, obs)
}

// --- internals ---

// maybeActivateLocked transitions to ACTIVE when the timer has started and
// the kind's media gate is satisfied. Caller holds the lock.
func (c *Coordinator) maybeActivateLocked() (Snapshot, []Observer, bool) {
	if c.state.Status != StatusWaiting && c.state.Status != StatusMediaPending {
		return Snapshot{}, nil, false
	}
	if !c.timerStarted {
		return Snapshot{}, nil, false
	}
	if c.events.requireMediaJoin && !c.mediaState.LocalJoined {
		return Snapshot{}, nil, false
	}

	now := c.clock.Now()
	c.state.Status = StatusActive
	if c.state.DeadlineAt.IsZero() {
		c.state.DeadlineAt = now.Add(c.pendingMax)
		c.state.ElapsedBase = 0
	}
	c.state.LastSyncAt = now
	c.zeroNotified = false
	snap, obs := c.publishLocked()
	return snap, obs, true
}

// deriveLoop re-derives remaining time on a fixed cadence so observers learn
// about the countdown crossing zero. It never ends the session; only the
// server's terminal event does that.
func (c *Coordinator) deriveLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := c.clock.NewTicker(c.cfg.DeriveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.disposed || c.state.Status != StatusActive || c.zeroNotified {
				c.mu.Unlock()
				continue
			}
			if c.state.Remaining(c.clock.Now()) > 0 {
				c.mu.Unlock()
				continue
			}
			c.zeroNotified = true
			snap, obs := c.publishLocked()
			c.mu.Unlock()
			c.deliver(snap, obs)
		}
	}
}

func (c *Coordinator) leaveMedia(ctx context.Context) {
	if err := c.engine.Leave(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", c.handle.SessionID).Msg("media leave failed")
	}
}

func (c *Coordinator) teardownListeners() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	peers := c.peerCancels
	c.peerCancels = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	for _, cancel := range peers {
		cancel()
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	now := c.clock.Now()
	return Snapshot{
		SessionID:        c.handle.SessionID,
		Status:           c.state.Status,
		RemainingSeconds: int(c.state.Remaining(now) / time.Second),
		ElapsedSeconds:   int(c.state.Elapsed(now) / time.Second),
		MediaJoined:      c.mediaState.LocalJoined,
		MediaFailed:      c.mediaFailed,
		RemotePeer:       c.mediaState.RemotePeer,
		EndReason:        c.endReason,
	}
}

func (c *Coordinator) publishLocked() (Snapshot, []Observer) {
	snap := c.snapshotLocked()
	obs := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	return snap, obs
}

// deliver invokes an observer batch outside the lock. A batch captured just
// before Dispose is dropped rather than invoked after Dispose has returned;
// Dispose delivers its own final snapshot directly.
func (c *Coordinator) deliver(snap Snapshot, obs []Observer) {
	if len(obs) == 0 {
		return
	}
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return
	}
	for _, fn := range obs {
		fn(snap)
	}
}
