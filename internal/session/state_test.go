package session

import (
	"testing"
	"time"
)

func TestTimerStateRemaining(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("zero deadline yields zero", func(t *testing.T) {
		s := TimerState{Status: StatusWaiting}
		if got := s.Remaining(now); got != 0 {
			t.Errorf("Remaining = %v, want 0", got)
		}
	})

	t.Run("derives from absolute deadline", func(t *testing.T) {
		s := TimerState{Status: StatusActive, DeadlineAt: now.Add(5 * time.Minute)}
		if got := s.Remaining(now); got != 5*time.Minute {
			t.Errorf("Remaining = %v, want %v", got, 5*time.Minute)
		}
	})

	t.Run("clamps at zero past the deadline", func(t *testing.T) {
		s := TimerState{Status: StatusActive, DeadlineAt: now.Add(-time.Second)}
		if got := s.Remaining(now); got != 0 {
			t.Errorf("Remaining = %v, want 0", got)
		}
	})
}

func TestTimerStateElapsed(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("active extends base by wall time since sync", func(t *testing.T) {
		s := TimerState{
			Status:      StatusActive,
			ElapsedBase: 30 * time.Second,
			LastSyncAt:  now.Add(-10 * time.Second),
		}
		if got := s.Elapsed(now); got != 40*time.Second {
			t.Errorf("Elapsed = %v, want %v", got, 40*time.Second)
		}
	})

	t.Run("non-active returns the base alone", func(t *testing.T) {
		s := TimerState{
			Status:      StatusEnded,
			ElapsedBase: 30 * time.Second,
			LastSyncAt:  now.Add(-10 * time.Second),
		}
		if got := s.Elapsed(now); got != 30*time.Second {
			t.Errorf("Elapsed = %v, want %v", got, 30*time.Second)
		}
	})
}

func TestStatusTerminal(t *testing.T) {
	for _, status := range []Status{StatusWaiting, StatusMediaPending, StatusActive} {
		if status.Terminal() {
			t.Errorf("%s should not be terminal", status)
		}
	}
	for _, status := range []Status{StatusEnded, StatusCancelled} {
		if !status.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
}

func TestKindDefaults(t *testing.T) {
	if KindChat.HasMedia() {
		t.Error("chat should have no media leg")
	}
	if !KindVideoCall.Video() || KindVoiceCall.Video() {
		t.Error("video flag wrong for call kinds")
	}
	if !eventsForKind(KindVoiceCall).requireMediaJoin {
		t.Error("voice call should gate on media join")
	}
	if eventsForKind(KindChat).requireMediaJoin {
		t.Error("chat should not gate on media join")
	}
	if eventsForKind(KindLivestreamCall).requireMediaJoin {
		t.Error("livestream call should start unconditionally")
	}
}

func TestHandleValidate(t *testing.T) {
	if err := (Handle{Kind: KindChat}).Validate(); err == nil {
		t.Error("expected error for empty session id")
	}
	if err := (Handle{SessionID: "s1", Kind: "BOGUS"}).Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := (Handle{SessionID: "s1", Kind: KindChat}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
