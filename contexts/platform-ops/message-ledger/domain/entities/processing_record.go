package entities

import (
	"strings"
	"time"

	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusDeadLettered      Status = "dead_lettered"
	StatusPermanentlyFailed Status = "permanently_failed"
	StatusCancelled         Status = "cancelled"
)

// TerminalStatuses are the statuses retention cleanup may delete.
var TerminalStatuses = []Status{
	StatusCompleted,
	StatusDeadLettered,
	StatusPermanentlyFailed,
	StatusCancelled,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
		StatusDeadLettered, StatusPermanentlyFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no automatic transition leaves s. Dead-lettered
// records can still be re-queued by an operator.
func (s Status) Terminal() bool {
	for _, terminal := range TerminalStatuses {
		if s == terminal {
			return true
		}
	}
	return false
}

// ProcessingRecord is the ledger row for one (TenantID, MessageID) pair.
// Version increases on every persisted transition and guards conditional writes.
type ProcessingRecord struct {
	ID          string
	TenantID    string
	MessageID   string
	MessageType string
	SourceTopic string
	Payload     []byte
	ContentHash string
	Priority    int

	Status       Status
	AttemptCount int
	MaxAttempts  int
	ClaimedBy    string

	ReceivedAt            time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	DurationMs            int64
	NextRetryAt           *time.Time

	ErrorMessage     string
	ExceptionDetails string

	IsDeadLettered   bool
	DeadLetteredAt   *time.Time
	DeadLetterReason string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type NewRecordInput struct {
	ID          string
	TenantID    string
	MessageID   string
	MessageType string
	SourceTopic string
	Payload     []byte
	ContentHash string
	Priority    int
	MaxAttempts int
	ReceivedAt  time.Time
}

func NewProcessingRecord(input NewRecordInput) (ProcessingRecord, error) {
	if strings.TrimSpace(input.ID) == "" ||
		strings.TrimSpace(input.TenantID) == "" ||
		strings.TrimSpace(input.MessageID) == "" ||
		strings.TrimSpace(input.MessageType) == "" {
		return ProcessingRecord{}, domainerrors.ErrInvalidMessage
	}
	if input.MaxAttempts <= 0 {
		return ProcessingRecord{}, domainerrors.ErrInvalidMessage
	}
	received := input.ReceivedAt.UTC()
	return ProcessingRecord{
		ID:          input.ID,
		TenantID:    strings.TrimSpace(input.TenantID),
		MessageID:   strings.TrimSpace(input.MessageID),
		MessageType: strings.TrimSpace(input.MessageType),
		SourceTopic: strings.TrimSpace(input.SourceTopic),
		Payload:     append([]byte(nil), input.Payload...),
		ContentHash: input.ContentHash,
		Priority:    input.Priority,
		Status:      StatusPending,
		MaxAttempts: input.MaxAttempts,
		ReceivedAt:  received,
		CreatedAt:   received,
		UpdatedAt:   received,
	}, nil
}

// IsDue reports whether a pending record may be claimed at now.
func (r ProcessingRecord) IsDue(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	return r.NextRetryAt == nil || !r.NextRetryAt.After(now.UTC())
}

func (r ProcessingRecord) CanRetry() bool {
	return r.AttemptCount < r.MaxAttempts
}

// StartProcessing claims a due pending record.
func (r ProcessingRecord) StartProcessing(claimedBy string, now time.Time) (ProcessingRecord, error) {
	if r.Status != StatusPending {
		return r, domainerrors.ErrInvalidTransition
	}
	if !r.IsDue(now) {
		return r, domainerrors.ErrNotDue
	}
	ts := now.UTC()
	r.Status = StatusProcessing
	r.ProcessingStartedAt = &ts
	r.ProcessingCompletedAt = nil
	r.DurationMs = 0
	r.ClaimedBy = claimedBy
	r.UpdatedAt = ts
	return r, nil
}

func (r ProcessingRecord) Complete(now time.Time) (ProcessingRecord, error) {
	if r.Status != StatusProcessing {
		return r, domainerrors.ErrInvalidTransition
	}
	ts := now.UTC()
	r.Status = StatusCompleted
	r.ProcessingCompletedAt = &ts
	if r.ProcessingStartedAt != nil {
		r.DurationMs = ts.Sub(*r.ProcessingStartedAt).Milliseconds()
	}
	r.NextRetryAt = nil
	r.ErrorMessage = ""
	r.ExceptionDetails = ""
	r.UpdatedAt = ts
	return r, nil
}

// RecordFailure moves a processing record to failed. consumeAttempt is false
// when the attempt was interrupted by shutdown rather than by the handler.
func (r ProcessingRecord) RecordFailure(message string, details string, consumeAttempt bool, now time.Time) (ProcessingRecord, error) {
	if r.Status != StatusProcessing {
		return r, domainerrors.ErrInvalidTransition
	}
	ts := now.UTC()
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.ExceptionDetails = details
	if consumeAttempt {
		r.AttemptCount++
	}
	if r.ProcessingStartedAt != nil {
		r.DurationMs = ts.Sub(*r.ProcessingStartedAt).Milliseconds()
	}
	r.ClaimedBy = ""
	r.UpdatedAt = ts
	return r, nil
}

// ScheduleRetry returns a failed record to pending, due at nextRetryAt.
func (r ProcessingRecord) ScheduleRetry(nextRetryAt time.Time, now time.Time) (ProcessingRecord, error) {
	if r.Status != StatusFailed {
		return r, domainerrors.ErrInvalidTransition
	}
	if !r.CanRetry() {
		return r, domainerrors.ErrInvalidTransition
	}
	next := nextRetryAt.UTC()
	r.Status = StatusPending
	r.NextRetryAt = &next
	r.UpdatedAt = now.UTC()
	return r, nil
}

// DeadLetter parks a non-terminal record for operator attention.
func (r ProcessingRecord) DeadLetter(reason string, now time.Time) (ProcessingRecord, error) {
	switch r.Status {
	case StatusPending, StatusProcessing, StatusFailed:
	default:
		return r, domainerrors.ErrInvalidTransition
	}
	ts := now.UTC()
	r.Status = StatusDeadLettered
	r.IsDeadLettered = true
	r.DeadLetteredAt = &ts
	r.DeadLetterReason = reason
	r.NextRetryAt = nil
	r.ClaimedBy = ""
	r.UpdatedAt = ts
	return r, nil
}

// Requeue is the manual override that sends a dead-lettered record back to
// pending with a fresh attempt budget.
func (r ProcessingRecord) Requeue(now time.Time) (ProcessingRecord, error) {
	if r.Status != StatusDeadLettered {
		return r, domainerrors.ErrInvalidTransition
	}
	ts := now.UTC()
	r.Status = StatusPending
	r.AttemptCount = 0
	r.IsDeadLettered = false
	r.DeadLetteredAt = nil
	r.DeadLetterReason = ""
	r.NextRetryAt = &ts
	r.ProcessingStartedAt = nil
	r.ProcessingCompletedAt = nil
	r.DurationMs = 0
	r.UpdatedAt = ts
	return r, nil
}

// PermanentlyFail is terminal. It is allowed from any non-terminal status and
// from dead_lettered.
func (r ProcessingRecord) PermanentlyFail(reason string, now time.Time) (ProcessingRecord, error) {
	switch r.Status {
	case StatusPending, StatusProcessing, StatusFailed, StatusDeadLettered:
	default:
		return r, domainerrors.ErrInvalidTransition
	}
	ts := now.UTC()
	r.Status = StatusPermanentlyFailed
	r.ErrorMessage = reason
	r.NextRetryAt = nil
	r.ClaimedBy = ""
	r.ProcessingCompletedAt = &ts
	r.UpdatedAt = ts
	return r, nil
}

// Cancel withdraws a record that is not being worked on.
func (r ProcessingRecord) Cancel(reason string, now time.Time) (ProcessingRecord, error) {
	switch r.Status {
	case StatusPending, StatusFailed:
	default:
		return r, domainerrors.ErrInvalidTransition
	}
	ts := now.UTC()
	r.Status = StatusCancelled
	r.ErrorMessage = reason
	r.NextRetryAt = nil
	r.ProcessingCompletedAt = &ts
	r.UpdatedAt = ts
	return r, nil
}

// CompletionTime is the timestamp retention compares against.
func (r ProcessingRecord) CompletionTime() *time.Time {
	if r.DeadLetteredAt != nil {
		return r.DeadLetteredAt
	}
	return r.ProcessingCompletedAt
}

// Clone returns a copy that shares no mutable state with r.
func (r ProcessingRecord) Clone() ProcessingRecord {
	out := r
	out.Payload = append([]byte(nil), r.Payload...)
	out.ProcessingStartedAt = cloneTime(r.ProcessingStartedAt)
	out.ProcessingCompletedAt = cloneTime(r.ProcessingCompletedAt)
	out.NextRetryAt = cloneTime(r.NextRetryAt)
	out.DeadLetteredAt = cloneTime(r.DeadLetteredAt)
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	ts := *value
	return &ts
}

// Statistics summarizes one tenant's ledger.
type Statistics struct {
	TenantID          string
	Counts            map[Status]int
	Total             int
	AverageDurationMs float64
}
