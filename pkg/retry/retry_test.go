package retry

import (
	"testing"
	"time"
)

func TestNextExponentialGrowth(t *testing.T) {
	p := NewPolicy(100*time.Millisecond, 10*time.Second, 5, 0)

	tests := []struct {
		attempt uint
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		got, ok := p.Next(tt.attempt)
		if !ok {
			t.Fatalf("Next(%d): exhausted unexpectedly", tt.attempt)
		}
		if got != tt.want {
			t.Errorf("Next(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNextCappedAtMaxDelay(t *testing.T) {
	p := NewPolicy(1*time.Second, 4*time.Second, 10, 0)

	got, ok := p.Next(9)
	if !ok {
		t.Fatal("Next(9): exhausted unexpectedly")
	}
	if got != 4*time.Second {
		t.Errorf("Next(9) = %v, want cap %v", got, 4*time.Second)
	}
}

func TestExhaustedAtMaxAttempts(t *testing.T) {
	p := NewPolicy(time.Millisecond, time.Second, 3, 0)

	if _, ok := p.Next(2); !ok {
		t.Error("Next(2) reported exhausted, want one more attempt")
	}
	if _, ok := p.Next(3); ok {
		t.Error("Next(3) allowed a retry, want exhausted")
	}
	if !p.Exhausted(3) {
		t.Error("Exhausted(3) = false, want true")
	}
	if p.Exhausted(2) {
		t.Error("Exhausted(2) = true, want false")
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	p := NewPolicy(1*time.Second, 30*time.Second, 3, 0.2)

	for i := 0; i < 100; i++ {
		got, ok := p.Next(0)
		if !ok {
			t.Fatal("Next(0): exhausted unexpectedly")
		}
		lo := time.Duration(float64(time.Second) * 0.8)
		hi := time.Duration(float64(time.Second) * 1.2)
		if got < lo || got > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", got, lo, hi)
		}
	}
}

func TestDefaults(t *testing.T) {
	p := NewPolicy(0, 0, 0, 0)
	if p.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", p.BaseDelay, DefaultBaseDelay)
	}
	if p.MaxDelay != DefaultMaxDelay {
		t.Errorf("MaxDelay = %v, want %v", p.MaxDelay, DefaultMaxDelay)
	}
	if p.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %v, want %v", p.MaxAttempts, DefaultMaxAttempts)
	}
}
