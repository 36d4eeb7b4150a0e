package loop

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New()
	var got []int
	for i := 1; i <= 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Post(func() { l.Stop() })
	l.Run()

	if len(got) != 5 {
		t.Fatalf("expected 5 callbacks, got %d", len(got))
	}
	for i, v := range got {
		if v != i+1 {
			t.Errorf("callback %d ran out of order: got %d", i, v)
		}
	}
}

func TestPostFromOtherGoroutine(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Post(func() {
			close(done)
			l.Stop()
		})
	}()
	l.Run()
	select {
	case <-done:
	default:
		t.Fatal("callback never ran")
	}
}

func TestAfterFires(t *testing.T) {
	l := New()
	start := time.Now()
	var fired time.Time
	l.After(30*time.Millisecond, func() {
		fired = time.Now()
		l.Stop()
	})
	l.Run()
	if fired.IsZero() {
		t.Fatal("timer never fired")
	}
	if d := fired.Sub(start); d < 30*time.Millisecond {
		t.Errorf("timer fired early after %v", d)
	}
}

func TestTimerStop(t *testing.T) {
	l := New()
	var ran atomic.Bool
	tm := l.After(20*time.Millisecond, func() { ran.Store(true) })
	if !tm.Stop() {
		t.Fatal("Stop on pending timer should return true")
	}
	if tm.Stop() {
		t.Error("second Stop should return false")
	}
	l.After(50*time.Millisecond, func() { l.Stop() })
	l.Run()
	if ran.Load() {
		t.Error("stopped timer still fired")
	}
}

func TestTimerStopAfterFire(t *testing.T) {
	l := New()
	tm := l.After(5*time.Millisecond, func() { l.Stop() })
	l.Run()
	if tm.Stop() {
		t.Error("Stop after the callback ran should return false")
	}
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	l := New()
	var got []int
	l.After(30*time.Millisecond, func() { got = append(got, 3) })
	l.After(10*time.Millisecond, func() { got = append(got, 1) })
	l.After(20*time.Millisecond, func() { got = append(got, 2) })
	l.After(40*time.Millisecond, func() { l.Stop() })
	l.Run()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("timers fired out of order: %v", got)
	}
}

func TestRunUntil(t *testing.T) {
	l := New()
	var n int
	l.After(5*time.Millisecond, func() { n++ })
	l.After(10*time.Millisecond, func() { n++ })
	l.RunUntil(func() bool { return n >= 2 })
	if n != 2 {
		t.Errorf("RunUntil exited with n=%d", n)
	}
}

func TestPostAfterStopDropped(t *testing.T) {
	l := New()
	l.Stop()
	var ran bool
	l.Post(func() { ran = true })
	l.Run()
	if ran {
		t.Error("callback posted after Stop should not run")
	}
}

func TestCallbackPanicRecovered(t *testing.T) {
	l := New()
	var after bool
	l.Post(func() { panic("boom") })
	l.Post(func() {
		after = true
		l.Stop()
	})
	l.Run()
	if !after {
		t.Error("loop did not survive a panicking callback")
	}
}
