package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

type recordKey struct {
	tenantID  string
	messageID string
}

// Store is an in-memory ledger for local runtime and tests. Update applies the
// same version and status guard as the SQL adapter.
type Store struct {
	mu       sync.RWMutex
	records  map[recordKey]entities.ProcessingRecord
	sequence uint64
	logger   *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		records: make(map[recordKey]entities.ProcessingRecord),
		logger:  application.ResolveLogger(logger),
	}
}

func (s *Store) Create(_ context.Context, record entities.ProcessingRecord) (entities.ProcessingRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{tenantID: record.TenantID, messageID: record.MessageID}
	if existing, ok := s.records[key]; ok {
		return existing.Clone(), false, nil
	}
	stored := record.Clone()
	stored.Version = 1
	s.records[key] = stored
	return stored.Clone(), true, nil
}

func (s *Store) Get(_ context.Context, tenantID string, messageID string) (entities.ProcessingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordKey{tenantID: tenantID, messageID: messageID}]
	if !ok {
		return entities.ProcessingRecord{}, domainerrors.ErrRecordNotFound
	}
	return record.Clone(), nil
}

func (s *Store) Update(
	_ context.Context,
	record entities.ProcessingRecord,
	expected ...entities.Status,
) (entities.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{tenantID: record.TenantID, messageID: record.MessageID}
	current, ok := s.records[key]
	if !ok {
		return entities.ProcessingRecord{}, domainerrors.ErrRecordNotFound
	}
	if current.Version != record.Version || !statusIn(current.Status, expected) {
		return entities.ProcessingRecord{}, domainerrors.ErrStatusConflict
	}
	stored := record.Clone()
	stored.ID = current.ID
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1
	s.records[key] = stored
	return stored.Clone(), nil
}

func (s *Store) FindByContentHash(
	_ context.Context,
	tenantID string,
	contentHash string,
	statuses ...entities.Status,
) (entities.ProcessingRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found entities.ProcessingRecord
	ok := false
	for key, record := range s.records {
		if key.tenantID != tenantID || record.ContentHash != contentHash || !matchesContentStatus(record.Status, statuses) {
			continue
		}
		if !ok || record.ReceivedAt.Before(found.ReceivedAt) {
			found = record
			ok = true
		}
	}
	if !ok {
		return entities.ProcessingRecord{}, false, nil
	}
	return found.Clone(), true, nil
}

func (s *Store) ListReadyForRetry(_ context.Context, tenantID string, now time.Time, limit int) ([]entities.ProcessingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ready := make([]entities.ProcessingRecord, 0)
	for key, record := range s.records {
		if key.tenantID == tenantID && record.IsDue(now) {
			ready = append(ready, record.Clone())
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return dueAt(ready[i]).Before(dueAt(ready[j]))
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

func (s *Store) ListDeadLettered(_ context.Context, filter ports.DeadLetterFilter) ([]entities.ProcessingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.ProcessingRecord, 0)
	for key, record := range s.records {
		if key.tenantID != filter.TenantID || record.Status != entities.StatusDeadLettered || record.DeadLetteredAt == nil {
			continue
		}
		if !filter.From.IsZero() && record.DeadLetteredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && record.DeadLetteredAt.After(filter.To) {
			continue
		}
		items = append(items, record.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].DeadLetteredAt.After(*items[j].DeadLetteredAt)
	})
	if filter.Skip >= len(items) {
		return []entities.ProcessingRecord{}, nil
	}
	items = items[filter.Skip:]
	if filter.Take > 0 && len(items) > filter.Take {
		items = items[:filter.Take]
	}
	return items, nil
}

func (s *Store) ListStaleProcessing(_ context.Context, startedBefore time.Time, limit int) ([]entities.ProcessingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.ProcessingRecord, 0)
	for _, record := range s.records {
		if record.Status != entities.StatusProcessing || record.ProcessingStartedAt == nil {
			continue
		}
		if record.ProcessingStartedAt.Before(startedBefore) {
			items = append(items, record.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ProcessingStartedAt.Before(*items[j].ProcessingStartedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) ListTenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.records {
		seen[key.tenantID] = struct{}{}
	}
	tenants := make([]string, 0, len(seen))
	for tenantID := range seen {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (s *Store) DeleteTerminalBefore(_ context.Context, tenantID string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, record := range s.records {
		if key.tenantID != tenantID || !record.Status.Terminal() {
			continue
		}
		completedAt := record.CompletionTime()
		if completedAt == nil || !completedAt.Before(cutoff) {
			continue
		}
		delete(s.records, key)
		deleted++
	}
	return deleted, nil
}

func (s *Store) Statistics(_ context.Context, tenantID string) (entities.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := entities.Statistics{TenantID: tenantID, Counts: make(map[entities.Status]int)}
	var durationTotal int64
	completed := 0
	for key, record := range s.records {
		if key.tenantID != tenantID {
			continue
		}
		stats.Counts[record.Status]++
		stats.Total++
		if record.Status == entities.StatusCompleted {
			durationTotal += record.DurationMs
			completed++
		}
	}
	if completed > 0 {
		stats.AverageDurationMs = float64(durationTotal) / float64(completed)
	}
	return stats, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("ledger-%d", value), nil
}

func (s *Store) Float64() float64 {
	return rand.Float64()
}

func statusIn(status entities.Status, expected []entities.Status) bool {
	if len(expected) == 0 {
		return true
	}
	for _, candidate := range expected {
		if status == candidate {
			return true
		}
	}
	return false
}

func dueAt(record entities.ProcessingRecord) time.Time {
	if record.NextRetryAt != nil {
		return *record.NextRetryAt
	}
	return record.ReceivedAt
}

func matchesContentStatus(status entities.Status, statuses []entities.Status) bool {
	if len(statuses) == 0 {
		return status != entities.StatusCancelled
	}
	return slices.Contains(statuses, status)
}
