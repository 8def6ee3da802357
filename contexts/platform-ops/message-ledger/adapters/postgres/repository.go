package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the record unless (tenant_id, message_id) already exists, in
// which case the stored row is returned with created=false.
func (r *Repository) Create(ctx context.Context, record entities.ProcessingRecord) (entities.ProcessingRecord, bool, error) {
	row := fromEntity(record)
	row.Version = 1

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil && !isUniqueViolation(result.Error) {
		return entities.ProcessingRecord{}, false, result.Error
	}
	if result.Error == nil && result.RowsAffected > 0 {
		return row.toEntity(), true, nil
	}

	existing, err := r.Get(ctx, record.TenantID, record.MessageID)
	if err != nil {
		return entities.ProcessingRecord{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) Get(ctx context.Context, tenantID string, messageID string) (entities.ProcessingRecord, error) {
	var row processingRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND message_id = ?", tenantID, messageID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProcessingRecord{}, domainerrors.ErrRecordNotFound
		}
		return entities.ProcessingRecord{}, err
	}
	return row.toEntity(), nil
}

// Update writes a transition only if the row still has the caller's version
// and one of the expected statuses. This single conditional UPDATE is the
// ledger's only synchronization point between workers.
func (r *Repository) Update(
	ctx context.Context,
	record entities.ProcessingRecord,
	expected ...entities.Status,
) (entities.ProcessingRecord, error) {
	row := fromEntity(record)
	nextVersion := record.Version + 1

	tx := r.db.WithContext(ctx).
		Model(&processingRecordModel{}).
		Where("tenant_id = ? AND message_id = ? AND version = ?", record.TenantID, record.MessageID, record.Version)
	if len(expected) > 0 {
		tx = tx.Where("status IN ?", statusStrings(expected))
	}
	result := tx.Updates(transitionColumns(row, nextVersion))
	if result.Error != nil {
		return entities.ProcessingRecord{}, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, record.TenantID, record.MessageID); err != nil {
			return entities.ProcessingRecord{}, err
		}
		return entities.ProcessingRecord{}, domainerrors.ErrStatusConflict
	}

	updated := record.Clone()
	updated.Version = nextVersion
	return updated, nil
}

func (r *Repository) FindByContentHash(
	ctx context.Context,
	tenantID string,
	contentHash string,
	statuses ...entities.Status,
) (entities.ProcessingRecord, bool, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ? AND content_hash = ?", tenantID, contentHash)
	if len(statuses) == 0 {
		query = query.Where("status <> ?", string(entities.StatusCancelled))
	} else {
		query = query.Where("status IN ?", statusStrings(statuses))
	}
	var rows []processingRecordModel
	err := query.
		Order("received_at ASC").
		Limit(1).
		Find(&rows).
		Error
	if err != nil {
		return entities.ProcessingRecord{}, false, err
	}
	if len(rows) == 0 {
		return entities.ProcessingRecord{}, false, nil
	}
	return rows[0].toEntity(), true, nil
}

func (r *Repository) ListReadyForRetry(ctx context.Context, tenantID string, now time.Time, limit int) ([]entities.ProcessingRecord, error) {
	var rows []processingRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, string(entities.StatusPending)).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now.UTC()).
		Order("priority DESC").
		Order("COALESCE(next_retry_at, received_at) ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *Repository) ListDeadLettered(ctx context.Context, filter ports.DeadLetterFilter) ([]entities.ProcessingRecord, error) {
	tx := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", filter.TenantID, string(entities.StatusDeadLettered))
	if !filter.From.IsZero() {
		tx = tx.Where("dead_lettered_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		tx = tx.Where("dead_lettered_at <= ?", filter.To.UTC())
	}
	if filter.Skip > 0 {
		tx = tx.Offset(filter.Skip)
	}
	if filter.Take > 0 {
		tx = tx.Limit(filter.Take)
	}

	var rows []processingRecordModel
	if err := tx.Order("dead_lettered_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *Repository) ListStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]entities.ProcessingRecord, error) {
	var rows []processingRecordModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND processing_started_at < ?", string(entities.StatusProcessing), startedBefore.UTC()).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *Repository) ListTenants(ctx context.Context) ([]string, error) {
	var tenants []string
	err := r.db.WithContext(ctx).
		Model(&processingRecordModel{}).
		Distinct().
		Order("tenant_id").
		Pluck("tenant_id", &tenants).
		Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// DeleteTerminalBefore removes terminal rows whose completion timestamp is
// older than cutoff.
func (r *Repository) DeleteTerminalBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, statusStrings(entities.TerminalStatuses)).
		Where("COALESCE(dead_lettered_at, processing_completed_at) < ?", cutoff.UTC()).
		Delete(&processingRecordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		r.logger.Debug("terminal ledger rows deleted",
			"event", "ledger_rows_deleted",
			"module", "platform-ops/message-ledger",
			"layer", "adapter",
			"tenant_id", tenantID,
			"deleted", result.RowsAffected,
		)
	}
	return result.RowsAffected, nil
}

type statusCountRow struct {
	Status string
	Count  int
}

func (r *Repository) Statistics(ctx context.Context, tenantID string) (entities.Statistics, error) {
	var counts []statusCountRow
	err := r.db.WithContext(ctx).
		Model(&processingRecordModel{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&counts).
		Error
	if err != nil {
		return entities.Statistics{}, err
	}

	var average struct {
		Value float64
	}
	err = r.db.WithContext(ctx).
		Model(&processingRecordModel{}).
		Select("COALESCE(AVG(duration_ms), 0) AS value").
		Where("tenant_id = ? AND status = ?", tenantID, string(entities.StatusCompleted)).
		Scan(&average).
		Error
	if err != nil {
		return entities.Statistics{}, err
	}

	stats := entities.Statistics{
		TenantID:          tenantID,
		Counts:            make(map[entities.Status]int, len(counts)),
		AverageDurationMs: average.Value,
	}
	for _, row := range counts {
		stats.Counts[entities.Status(row.Status)] = row.Count
		stats.Total += row.Count
	}
	return stats, nil
}

func toEntities(rows []processingRecordModel) []entities.ProcessingRecord {
	items := make([]entities.ProcessingRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func statusStrings(statuses []entities.Status) []string {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return values
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
