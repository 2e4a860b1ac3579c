package throttle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSleeper records requested sleep durations without sleeping.
type fakeSleeper struct {
	slept []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return nil
}

func newTestController(fs *fakeSleeper) *Controller {
	return NewController(Options{
		Floor:         5 * time.Second,
		Ceiling:       30 * time.Second,
		Step:          5 * time.Second,
		SuccessStreak: 3,
		Sleep:         fs.sleep,
	}, testLogger())
}

func TestBackoff_MonotonicUnderConsecutiveFailures(t *testing.T) {
	c := newTestController(&fakeSleeper{})

	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 15 * time.Second,
		20 * time.Second, 25 * time.Second, 30 * time.Second,
		30 * time.Second, 30 * time.Second,
	}
	var prev time.Duration
	for i, w := range want {
		c.RecordFailure("/movies", Transient)
		got := c.Backoff("/movies")
		if got != w {
			t.Errorf("failure %d: backoff = %s, want %s", i+1, got, w)
		}
		if got < prev {
			t.Errorf("failure %d: backoff decreased from %s to %s", i+1, prev, got)
		}
		prev = got
	}
}

func TestSuccessStreakResetsToFloor(t *testing.T) {
	c := newTestController(&fakeSleeper{})

	for range 4 {
		c.RecordFailure("/movies", Transient)
	}
	if got := c.Backoff("/movies"); got != 20*time.Second {
		t.Fatalf("backoff = %s, want 20s", got)
	}

	// Two successes are not enough recovery evidence.
	c.RecordSuccess("/movies")
	c.RecordSuccess("/movies")
	if got := c.Backoff("/movies"); got != 20*time.Second {
		t.Errorf("backoff after partial streak = %s, want 20s", got)
	}

	// Third success completes the streak.
	c.RecordSuccess("/movies")
	if got := c.Backoff("/movies"); got != 0 {
		t.Errorf("backoff after full streak = %s, want 0 (healthy)", got)
	}
}

func TestFailureInterruptsSuccessStreak(t *testing.T) {
	c := newTestController(&fakeSleeper{})

	c.RecordFailure("/tv", Transient)
	c.RecordSuccess("/tv")
	c.RecordSuccess("/tv")
	c.RecordFailure("/tv", Transient)
	c.RecordSuccess("/tv")
	c.RecordSuccess("/tv")

	if got := c.Backoff("/tv"); got == 0 {
		t.Error("streak should have been reset by the interleaved failure")
	}
}

func TestPermanentFailuresDoNotAffectBackoff(t *testing.T) {
	c := newTestController(&fakeSleeper{})

	c.RecordFailure("/movies", Permanent)
	c.RecordFailure("/movies", Permanent)
	if got := c.Backoff("/movies"); got != 0 {
		t.Errorf("backoff = %s, want 0 after permanent failures", got)
	}
}

func TestBeforeOperation_HealthyMountDoesNotBlock(t *testing.T) {
	fs := &fakeSleeper{}
	c := newTestController(fs)

	if err := c.BeforeOperation(context.Background(), "/movies"); err != nil {
		t.Fatalf("BeforeOperation: %v", err)
	}
	if len(fs.slept) != 0 {
		t.Errorf("slept %v, want no sleeps on healthy mount", fs.slept)
	}
}

func TestBeforeOperation_UnhealthyMountWaitsCurrentBackoff(t *testing.T) {
	fs := &fakeSleeper{}
	c := newTestController(fs)

	c.RecordFailure("/movies", Transient)
	c.RecordFailure("/movies", Transient)

	if err := c.BeforeOperation(context.Background(), "/movies"); err != nil {
		t.Fatalf("BeforeOperation: %v", err)
	}
	if len(fs.slept) != 1 || fs.slept[0] != 10*time.Second {
		t.Errorf("slept %v, want one 10s wait", fs.slept)
	}
}

func TestRootsAreIndependent(t *testing.T) {
	c := newTestController(&fakeSleeper{})

	c.RecordFailure("/movies", Transient)
	if got := c.Backoff("/tv"); got != 0 {
		t.Errorf("backoff for /tv = %s, want 0", got)
	}
}

func TestBeforeOperation_CanceledContext(t *testing.T) {
	c := NewController(Options{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.BeforeOperation(ctx, "/movies"); err == nil {
		t.Error("expected context error")
	}
}
