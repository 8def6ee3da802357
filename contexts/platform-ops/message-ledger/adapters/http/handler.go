package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/application/commands"
	"agora/contexts/platform-ops/message-ledger/application/queries"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
	httptransport "agora/contexts/platform-ops/message-ledger/transport/http"
)

const timeLayout = time.RFC3339

type Handler struct {
	GetRecord         queries.GetRecordUseCase
	IsProcessed       queries.IsProcessedUseCase
	ReadyForRetry     queries.GetReadyForRetryUseCase
	DeadLettered      queries.GetDeadLetteredUseCase
	Statistics        queries.GetStatisticsUseCase
	ContentLookup     queries.FindByContentHashUseCase
	MarkDeadLettered  commands.MarkDeadLetteredUseCase
	RetryDeadLettered commands.RetryDeadLetteredUseCase
	PermanentlyFail   commands.PermanentlyFailUseCase
	Cancel            commands.CancelMessageUseCase
	Cleanup           commands.CleanupRecordsUseCase
	Logger            *slog.Logger
}

// GetRecordHandler godoc
// @Summary Get a processing record
// @Tags message-ledger
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param message_id path string true "Message id"
// @Success 200 {object} httptransport.GetRecordResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /ledger/v1/tenants/{tenant_id}/messages/{message_id} [get]
func (h Handler) GetRecordHandler(ctx context.Context, tenantID string, messageID string) (httptransport.GetRecordResponse, error) {
	record, err := h.GetRecord.Execute(ctx, tenantID, messageID)
	if err != nil {
		return httptransport.GetRecordResponse{}, err
	}
	return httptransport.GetRecordResponse{Item: MapRecord(record)}, nil
}

// IsProcessedHandler godoc
// @Summary Check whether a message completed
// @Tags message-ledger
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param message_id path string true "Message id"
// @Success 200 {object} httptransport.IsProcessedResponse
// @Router /ledger/v1/tenants/{tenant_id}/messages/{message_id}/processed [get]
func (h Handler) IsProcessedHandler(ctx context.Context, tenantID string, messageID string) (httptransport.IsProcessedResponse, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(messageID) == "" {
		return httptransport.IsProcessedResponse{}, domainerrors.ErrInvalidRequest
	}
	return httptransport.IsProcessedResponse{
		TenantID:  tenantID,
		MessageID: messageID,
		Processed: h.IsProcessed.Execute(ctx, tenantID, messageID),
	}, nil
}

// ReadyForRetryHandler godoc
// @Summary List records due for retry
// @Tags message-ledger
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param limit query int false "Maximum records (default 100)"
// @Success 200 {object} httptransport.ListRecordsResponse
// @Router /ledger/v1/tenants/{tenant_id}/retries [get]
func (h Handler) ReadyForRetryHandler(ctx context.Context, tenantID string, limit int) (httptransport.ListRecordsResponse, error) {
	records, err := h.ReadyForRetry.Execute(ctx, tenantID, limit)
	if err != nil {
		return httptransport.ListRecordsResponse{}, err
	}
	return httptransport.ListRecordsResponse{Items: mapRecords(records)}, nil
}

// DeadLetteredHandler godoc
// @Summary List dead-lettered records
// @Tags message-ledger
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param from query string false "RFC3339 lower bound on dead_lettered_at"
// @Param to query string false "RFC3339 upper bound on dead_lettered_at"
// @Param skip query int false "Offset"
// @Param take query int false "Page size (default 50)"
// @Success 200 {object} httptransport.ListRecordsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /ledger/v1/tenants/{tenant_id}/dead-letters [get]
func (h Handler) DeadLetteredHandler(
	ctx context.Context,
	tenantID string,
	req httptransport.DeadLetterListRequest,
) (httptransport.ListRecordsResponse, error) {
	filter := ports.DeadLetterFilter{TenantID: tenantID, Skip: req.Skip, Take: req.Take}
	var err error
	if filter.From, err = parseOptionalTime(req.From); err != nil {
		return httptransport.ListRecordsResponse{}, err
	}
	if filter.To, err = parseOptionalTime(req.To); err != nil {
		return httptransport.ListRecordsResponse{}, err
	}
	records, err := h.DeadLettered.Execute(ctx, filter)
	if err != nil {
		return httptransport.ListRecordsResponse{}, err
	}
	return httptransport.ListRecordsResponse{Items: mapRecords(records)}, nil
}

// StatisticsHandler godoc
// @Summary Ledger statistics for a tenant
// @Tags message-ledger
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Success 200 {object} httptransport.StatisticsResponse
// @Router /ledger/v1/tenants/{tenant_id}/statistics [get]
func (h Handler) StatisticsHandler(ctx context.Context, tenantID string) (httptransport.StatisticsResponse, error) {
	stats, err := h.Statistics.Execute(ctx, tenantID)
	if err != nil {
		return httptransport.StatisticsResponse{}, err
	}
	counts := make(map[string]int, len(stats.Counts))
	for status, count := range stats.Counts {
		counts[string(status)] = count
	}
	return httptransport.StatisticsResponse{
		TenantID:          stats.TenantID,
		Total:             stats.Total,
		Counts:            counts,
		AverageDurationMs: stats.AverageDurationMs,
	}, nil
}

// ContentLookupHandler godoc
// @Summary Find a record by payload hash
// @Tags message-ledger
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param hash path string true "SHA-256 hex of the payload"
// @Success 200 {object} httptransport.ContentLookupResponse
// @Router /ledger/v1/tenants/{tenant_id}/content/{hash} [get]
func (h Handler) ContentLookupHandler(ctx context.Context, tenantID string, hash string) (httptransport.ContentLookupResponse, error) {
	record, found, err := h.ContentLookup.Execute(ctx, tenantID, hash)
	if err != nil {
		return httptransport.ContentLookupResponse{}, err
	}
	if !found {
		return httptransport.ContentLookupResponse{}, nil
	}
	item := MapRecord(record)
	return httptransport.ContentLookupResponse{
		Found:     true,
		Processed: record.Status == entities.StatusCompleted,
		Item:      &item,
	}, nil
}

// TransitionHandler godoc
// @Summary Apply an operator transition
// @Description action is one of dead-letter, retry, permanent-failure, cancel.
// @Tags message-ledger
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param message_id path string true "Message id"
// @Param request body httptransport.TransitionRequest false "Reason"
// @Success 200 {object} httptransport.GetRecordResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /ledger/v1/tenants/{tenant_id}/messages/{message_id}/{action} [post]
func (h Handler) TransitionHandler(
	ctx context.Context,
	actor string,
	tenantID string,
	messageID string,
	action string,
	req httptransport.TransitionRequest,
) (httptransport.GetRecordResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	cmd := commands.TransitionCommand{TenantID: tenantID, MessageID: messageID, Reason: req.Reason, Actor: actor}

	var (
		record entities.ProcessingRecord
		err    error
	)
	switch action {
	case "dead-letter":
		record, err = h.MarkDeadLettered.Execute(ctx, cmd)
	case "retry":
		record, err = h.RetryDeadLettered.Execute(ctx, cmd)
	case "permanent-failure":
		record, err = h.PermanentlyFail.Execute(ctx, cmd)
	case "cancel":
		record, err = h.Cancel.Execute(ctx, cmd)
	default:
		return httptransport.GetRecordResponse{}, domainerrors.ErrInvalidRequest
	}
	if err != nil {
		logger.Warn("ledger transition rejected",
			"event", "http_ledger_transition_failed",
			"module", application.ModuleName,
			"layer", "transport",
			"tenant_id", tenantID,
			"message_id", messageID,
			"action", action,
			"error", err.Error(),
		)
		return httptransport.GetRecordResponse{}, err
	}
	return httptransport.GetRecordResponse{Item: MapRecord(record)}, nil
}

// CleanupHandler godoc
// @Summary Delete terminal records past retention
// @Tags message-ledger
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param request body httptransport.CleanupRequest true "Retention window"
// @Success 200 {object} httptransport.CleanupResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /ledger/v1/tenants/{tenant_id}/cleanup [post]
func (h Handler) CleanupHandler(ctx context.Context, tenantID string, req httptransport.CleanupRequest) (httptransport.CleanupResponse, error) {
	result, err := h.Cleanup.Execute(ctx, tenantID, req.RetentionDays)
	if err != nil {
		return httptransport.CleanupResponse{}, err
	}
	return httptransport.CleanupResponse{
		TenantID: result.TenantID,
		Cutoff:   result.Cutoff.UTC().Format(timeLayout),
		Deleted:  result.Deleted,
	}, nil
}

func MapRecord(record entities.ProcessingRecord) httptransport.ProcessingRecordDTO {
	return httptransport.ProcessingRecordDTO{
		ID:                    record.ID,
		TenantID:              record.TenantID,
		MessageID:             record.MessageID,
		MessageType:           record.MessageType,
		SourceTopic:           record.SourceTopic,
		Status:                string(record.Status),
		Priority:              record.Priority,
		AttemptCount:          record.AttemptCount,
		MaxAttempts:           record.MaxAttempts,
		ContentHash:           record.ContentHash,
		ReceivedAt:            record.ReceivedAt.UTC().Format(timeLayout),
		ProcessingStartedAt:   formatOptional(record.ProcessingStartedAt),
		ProcessingCompletedAt: formatOptional(record.ProcessingCompletedAt),
		DurationMs:            record.DurationMs,
		NextRetryAt:           formatOptional(record.NextRetryAt),
		ErrorMessage:          record.ErrorMessage,
		IsDeadLettered:        record.IsDeadLettered,
		DeadLetteredAt:        formatOptional(record.DeadLetteredAt),
		DeadLetterReason:      record.DeadLetterReason,
	}
}

func mapRecords(records []entities.ProcessingRecord) []httptransport.ProcessingRecordDTO {
	items := make([]httptransport.ProcessingRecordDTO, 0, len(records))
	for _, record := range records {
		items = append(items, MapRecord(record))
	}
	return items
}

func formatOptional(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func parseOptionalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domainerrors.ErrInvalidRequest
	}
	return parsed.UTC(), nil
}
