package services

import (
	"testing"
	"time"
)

func TestDelayDoublesFromBase(t *testing.T) {
	policy := DefaultBackoffPolicy()
	expected := []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
		960 * time.Second,
		1920 * time.Second,
		time.Hour,
		time.Hour,
	}
	for attempt, want := range expected {
		if got := policy.Delay(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestDelayIsMonotonicAndBounded(t *testing.T) {
	policy := BackoffPolicy{BaseDelay: 7 * time.Second, MaxDelay: 10 * time.Minute, JitterRatio: 0.1}
	previous := time.Duration(0)
	for attempt := 0; attempt < 200; attempt++ {
		delay := policy.Delay(attempt)
		if delay < previous {
			t.Fatalf("attempt %d: delay decreased from %s to %s", attempt, previous, delay)
		}
		if delay > policy.MaxDelay {
			t.Fatalf("attempt %d: delay %s exceeds max %s", attempt, delay, policy.MaxDelay)
		}
		previous = delay
	}
}

func TestNextRetryAtStaysWithinJitterBand(t *testing.T) {
	policy := DefaultBackoffPolicy()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, sample := range []float64{0, 0.25, 0.5, 0.999, 1.5, -1} {
		for attempt := 0; attempt < 12; attempt++ {
			next := policy.NextRetryAt(now, attempt, sample)
			delay := policy.Delay(attempt)
			lower := now.Add(delay)
			upper := now.Add(delay + time.Duration(0.1*float64(delay)))
			if next.Before(lower) || next.After(upper) {
				t.Fatalf("attempt %d sample %v: %s outside [%s, %s]", attempt, sample, next, lower, upper)
			}
		}
	}
}

func TestFirstRetryLandsBetweenThirtyAndThirtyThreeSeconds(t *testing.T) {
	policy := DefaultBackoffPolicy()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := policy.NextRetryAt(now, 0, 0.999)
	if next.Sub(now) < 30*time.Second || next.Sub(now) > 33*time.Second {
		t.Fatalf("expected first retry in [30s, 33s], got %s", next.Sub(now))
	}
}

func TestContentHashIsStableHex(t *testing.T) {
	first := ContentHash([]byte(`{"content":"hello"}`))
	second := ContentHash([]byte(`{"content":"hello"}`))
	other := ContentHash([]byte(`{"content":"bye"}`))
	if first != second {
		t.Fatalf("expected stable hash, got %s vs %s", first, second)
	}
	if first == other {
		t.Fatal("expected different payloads to hash differently")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
}
