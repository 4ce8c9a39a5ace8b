package session

import (
	"testing"
	"time"
)

func TestReconcile(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("drift within tolerance is ignored", func(t *testing.T) {
		corr := Reconcile(now, 299*time.Second, 300*time.Second, 2*time.Second)
		if corr.Correct {
			t.Fatalf("expected no correction for 1s drift, got %+v", corr)
		}
		if corr.Drift != time.Second {
			t.Errorf("Drift = %v, want %v", corr.Drift, time.Second)
		}
	})

	t.Run("drift exactly at tolerance is ignored", func(t *testing.T) {
		corr := Reconcile(now, 298*time.Second, 300*time.Second, 2*time.Second)
		if corr.Correct {
			t.Fatalf("expected no correction at exactly tolerance, got %+v", corr)
		}
	})

	t.Run("drift beyond tolerance corrects to server value", func(t *testing.T) {
		corr := Reconcile(now, 310*time.Second, 300*time.Second, 2*time.Second)
		if !corr.Correct {
			t.Fatal("expected correction for 10s drift")
		}
		want := now.Add(300 * time.Second)
		if !corr.NewDeadline.Equal(want) {
			t.Errorf("NewDeadline = %v, want %v", corr.NewDeadline, want)
		}
		if corr.Drift != 10*time.Second {
			t.Errorf("Drift = %v, want %v", corr.Drift, 10*time.Second)
		}
	})

	t.Run("drift is symmetric", func(t *testing.T) {
		behind := Reconcile(now, 290*time.Second, 300*time.Second, 2*time.Second)
		ahead := Reconcile(now, 310*time.Second, 300*time.Second, 2*time.Second)
		if behind.Drift != ahead.Drift {
			t.Errorf("drift not symmetric: behind %v, ahead %v", behind.Drift, ahead.Drift)
		}
		if !behind.Correct || !ahead.Correct {
			t.Error("expected corrections in both directions")
		}
	})

	t.Run("non-positive tolerance falls back to default", func(t *testing.T) {
		corr := Reconcile(now, 299*time.Second, 300*time.Second, 0)
		if corr.Correct {
			t.Fatal("1s drift should be within the default 2s tolerance")
		}
		corr = Reconcile(now, 295*time.Second, 300*time.Second, 0)
		if !corr.Correct {
			t.Fatal("5s drift should exceed the default 2s tolerance")
		}
	})
}
