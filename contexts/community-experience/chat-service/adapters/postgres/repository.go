package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainerrors "agora/contexts/community-experience/chat-service/domain/errors"
	"agora/contexts/community-experience/chat-service/ports"

	"github.com/google/uuid"
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
	return &Repository{db: db, logger: logger}
}

var errClientReplay = errors.New("client message id already used")

func (r *Repository) CreateMessage(ctx context.Context, input ports.CreateMessageInput, now time.Time) (ports.Message, bool, error) {
	if input.ClientMessageID != "" {
		if existing, found, err := r.findByClientID(ctx, input.TenantID, input.ClientMessageID); err != nil {
			return ports.Message{}, false, err
		} else if found {
			return replay(existing, input.RequestHash)
		}
	}

	var created messageModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sequence := channelSequenceModel{TenantID: input.TenantID, ChannelID: input.ChannelID, LastSequence: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "channel_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_sequence": gorm.Expr("chat_channel_sequences.last_sequence + 1"),
			}),
		}).Create(&sequence).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND channel_id = ?", input.TenantID, input.ChannelID).
			First(&sequence).Error; err != nil {
			return err
		}

		created = messageModel{
			TenantID:       input.TenantID,
			MessageID:      input.MessageID,
			RequestHash:    input.RequestHash,
			ChannelID:      input.ChannelID,
			SequenceNumber: sequence.LastSequence,
			ThreadID:       input.ThreadID,
			UserID:         input.UserID,
			Username:       input.Username,
			Content:        input.Content,
			Mentions:       encodeMentions(input.Mentions),
			CreatedAt:      now.UTC(),
			UpdatedAt:      now.UTC(),
		}
		if input.ClientMessageID != "" {
			clientID := input.ClientMessageID
			created.ClientMessageID = &clientID
		}
		if err := tx.Create(&created).Error; err != nil {
			if isUniqueViolation(err) && input.ClientMessageID != "" {
				return errClientReplay
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errClientReplay) {
		// A concurrent post with the same client id won the insert.
		existing, found, findErr := r.findByClientID(ctx, input.TenantID, input.ClientMessageID)
		if findErr != nil {
			return ports.Message{}, false, findErr
		}
		if !found {
			return ports.Message{}, false, domainerrors.ErrConflict
		}
		return replay(existing, input.RequestHash)
	}
	if err != nil {
		return ports.Message{}, false, err
	}
	return created.toPort(), true, nil
}

// UpdateMessage edits in one conditional statement; a miss is classified
// afterwards by reloading the row.
func (r *Repository) UpdateMessage(ctx context.Context, input ports.UpdateMessageInput, now time.Time) (ports.Message, error) {
	query := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("tenant_id = ? AND message_id = ? AND user_id = ? AND deleted_at IS NULL", input.TenantID, input.MessageID, input.UserID)
	if input.EditWindow > 0 {
		query = query.Where("created_at >= ?", now.UTC().Add(-input.EditWindow))
	}
	result := query.Updates(map[string]any{
		"content":    input.Content,
		"mentions":   encodeMentions(input.Mentions),
		"edited":     true,
		"updated_at": now.UTC(),
	})
	if result.Error != nil {
		return ports.Message{}, result.Error
	}
	row, err := r.get(ctx, input.TenantID, input.MessageID)
	if err != nil {
		return ports.Message{}, err
	}
	if result.RowsAffected == 0 {
		switch {
		case row.DeletedAt != nil:
			return ports.Message{}, domainerrors.ErrConflict
		case row.UserID != input.UserID:
			return ports.Message{}, domainerrors.ErrForbidden
		default:
			return ports.Message{}, domainerrors.ErrEditWindowExpired
		}
	}
	return row.toPort(), nil
}

func (r *Repository) DeleteMessage(ctx context.Context, input ports.DeleteMessageInput, now time.Time) (ports.Message, error) {
	result := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("tenant_id = ? AND message_id = ? AND user_id = ? AND deleted_at IS NULL", input.TenantID, input.MessageID, input.UserID).
		Updates(map[string]any{
			"content":            "[Deleted]",
			"mentions":           "",
			"deleted_at":         now.UTC(),
			"deleted_by_user_id": input.UserID,
			"deletion_reason":    input.Reason,
			"updated_at":         now.UTC(),
		})
	if result.Error != nil {
		return ports.Message{}, result.Error
	}
	row, err := r.get(ctx, input.TenantID, input.MessageID)
	if err != nil {
		return ports.Message{}, err
	}
	if result.RowsAffected == 0 && row.UserID != input.UserID {
		return ports.Message{}, domainerrors.ErrForbidden
	}
	return row.toPort(), nil
}

func (r *Repository) ListMessages(ctx context.Context, input ports.ListMessagesInput) ([]ports.Message, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel_id = ?", input.TenantID, input.ChannelID)
	if input.AfterSequence > 0 {
		query = query.Where("sequence_number > ?", input.AfterSequence)
	}
	if input.BeforeSequence > 0 {
		query = query.Where("sequence_number < ?", input.BeforeSequence)
	}
	if input.Limit > 0 {
		query = query.Limit(input.Limit)
	}
	var rows []messageModel
	if err := query.Order("sequence_number DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toPort())
	}
	return out, nil
}

func (r *Repository) get(ctx context.Context, tenantID string, messageID string) (messageModel, error) {
	var row messageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND message_id = ?", tenantID, messageID).
		First(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return messageModel{}, domainerrors.ErrMessageNotFound
	}
	return row, err
}

func (r *Repository) findByClientID(ctx context.Context, tenantID string, clientID string) (messageModel, bool, error) {
	var rows []messageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND client_message_id = ?", tenantID, clientID).
		Limit(1).
		Find(&rows).
		Error
	if err != nil || len(rows) == 0 {
		return messageModel{}, false, err
	}
	return rows[0], true, nil
}

func replay(existing messageModel, requestHash string) (ports.Message, bool, error) {
	if existing.RequestHash != requestHash {
		return ports.Message{}, false, domainerrors.ErrIdempotencyConflict
	}
	return existing.toPort(), false, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// UUIDGenerator creates chat message ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.Repository = (*Repository)(nil)
