package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresWaiters(t *testing.T) {
	start := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	c := NewFake(start)

	ch := c.After(10 * time.Minute)

	select {
	case <-ch:
		t.Fatal("waiter fired before the clock advanced")
	default:
	}

	c.Advance(5 * time.Minute)
	select {
	case <-ch:
		t.Fatal("waiter fired too early")
	default:
	}

	c.Advance(5 * time.Minute)
	select {
	case at := <-ch:
		if !at.Equal(start.Add(10 * time.Minute)) {
			t.Errorf("fired at %v, want %v", at, start.Add(10*time.Minute))
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never fired")
	}
}

func TestFakeAfterZeroFiresImmediately(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	case <-time.After(time.Second):
		t.Fatal("zero-duration After did not fire")
	}
}

func TestFakeNow(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewFake(start)
	c.Advance(30 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(30 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(30*time.Second))
	}
}
