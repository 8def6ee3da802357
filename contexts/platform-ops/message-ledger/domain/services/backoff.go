package services

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	DefaultBaseDelay   = 30 * time.Second
	DefaultMaxDelay    = time.Hour
	DefaultJitterRatio = 0.1
	DefaultMaxAttempts = 5
)

// BackoffPolicy computes retry delays as min(base * 2^attempts, max) plus up
// to JitterRatio of that delay.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterRatio float64
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		JitterRatio: DefaultJitterRatio,
	}
}

// Delay returns the capped exponential delay for a record that had
// attemptCount failed attempts before the one being scheduled.
func (p BackoffPolicy) Delay(attemptCount int) time.Duration {
	base, max := p.bounds()
	if attemptCount < 0 {
		attemptCount = 0
	}
	delay := base
	for i := 0; i < attemptCount; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// Jitter scales the delay by sample, which must be in [0, 1).
func (p BackoffPolicy) Jitter(delay time.Duration, sample float64) time.Duration {
	ratio := p.JitterRatio
	if ratio < 0 {
		ratio = 0
	}
	if sample < 0 {
		sample = 0
	}
	if sample >= 1 {
		sample = 0.999999
	}
	return time.Duration(sample * ratio * float64(delay))
}

// NextRetryAt is now + Delay(attemptCount) + Jitter.
func (p BackoffPolicy) NextRetryAt(now time.Time, attemptCount int, sample float64) time.Time {
	delay := p.Delay(attemptCount)
	return now.UTC().Add(delay + p.Jitter(delay, sample))
}

func (p BackoffPolicy) bounds() (time.Duration, time.Duration) {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if base > max {
		base = max
	}
	return base, max
}

// ContentHash fingerprints a payload for duplicate-content detection.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
