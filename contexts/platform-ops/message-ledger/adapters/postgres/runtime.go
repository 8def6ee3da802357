package postgresadapter

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// SystemClock is the default runtime clock implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator creates UUIDv4 identifiers for ledger records.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// JitterSource draws backoff jitter samples.
type JitterSource struct{}

func (JitterSource) Float64() float64 {
	return rand.Float64()
}
