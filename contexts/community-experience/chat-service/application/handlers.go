package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	domainerrors "agora/contexts/community-experience/chat-service/domain/errors"
	"agora/contexts/community-experience/chat-service/ports"
	"agora/internal/shared/mediator"
)

const (
	DefaultEditWindow = 5 * time.Minute
	defaultListLimit  = 50
	maxListLimit      = 200
)

type ListMessagesResult struct {
	Messages []ports.Message
	Limit    int
}

type PostMessageHandler struct {
	Repo        ports.Repository
	IDGenerator ports.IDGenerator
	Clock       ports.Clock
	Logger      *slog.Logger
}

func (h PostMessageHandler) Handle(ctx context.Context, cmd PostMessage) (ports.Message, error) {
	content := strings.TrimSpace(cmd.Content)
	messageID, err := h.IDGenerator.NewID(ctx)
	if err != nil {
		return ports.Message{}, err
	}
	clientID := strings.TrimSpace(cmd.ClientMessageID)
	input := ports.CreateMessageInput{
		TenantID:        cmd.TenantID,
		MessageID:       messageID,
		ClientMessageID: clientID,
		ChannelID:       strings.TrimSpace(cmd.ChannelID),
		ThreadID:        strings.TrimSpace(cmd.ThreadID),
		UserID:          cmd.UserID,
		Username:        defaultString(strings.TrimSpace(cmd.Username), cmd.UserID),
		Content:         content,
		Mentions:        parseMentions(content),
	}
	if clientID != "" {
		input.RequestHash = hashStrings(PostMessageName, input.ChannelID, input.ThreadID, input.UserID, content)
	}

	message, created, err := h.Repo.CreateMessage(ctx, input, now(h.Clock))
	if err != nil {
		return ports.Message{}, reject(err)
	}
	resolveLogger(h.Logger).Info("chat message posted",
		"event", "chat_message_posted",
		"module", moduleName,
		"layer", "application",
		"tenant_id", message.TenantID,
		"channel_id", message.ChannelID,
		"message_id", message.MessageID,
		"replayed", !created,
	)
	return message, nil
}

type EditMessageHandler struct {
	Repo       ports.Repository
	Clock      ports.Clock
	EditWindow time.Duration
	Logger     *slog.Logger
}

func (h EditMessageHandler) Handle(ctx context.Context, cmd EditMessage) (ports.Message, error) {
	window := h.EditWindow
	if window <= 0 {
		window = DefaultEditWindow
	}
	content := strings.TrimSpace(cmd.Content)
	message, err := h.Repo.UpdateMessage(ctx, ports.UpdateMessageInput{
		TenantID:   cmd.TenantID,
		MessageID:  cmd.MessageID,
		UserID:     cmd.UserID,
		Content:    content,
		Mentions:   parseMentions(content),
		EditWindow: window,
	}, now(h.Clock))
	if err != nil {
		return ports.Message{}, reject(err)
	}
	resolveLogger(h.Logger).Info("chat message edited",
		"event", "chat_message_edited",
		"module", moduleName,
		"layer", "application",
		"tenant_id", message.TenantID,
		"message_id", message.MessageID,
	)
	return message, nil
}

type DeleteMessageHandler struct {
	Repo   ports.Repository
	Clock  ports.Clock
	Logger *slog.Logger
}

func (h DeleteMessageHandler) Handle(ctx context.Context, cmd DeleteMessage) (ports.Message, error) {
	message, err := h.Repo.DeleteMessage(ctx, ports.DeleteMessageInput{
		TenantID:  cmd.TenantID,
		MessageID: cmd.MessageID,
		UserID:    cmd.UserID,
		Reason:    strings.TrimSpace(cmd.Reason),
	}, now(h.Clock))
	if err != nil {
		return ports.Message{}, reject(err)
	}
	resolveLogger(h.Logger).Info("chat message deleted",
		"event", "chat_message_deleted",
		"module", moduleName,
		"layer", "application",
		"tenant_id", message.TenantID,
		"message_id", message.MessageID,
	)
	return message, nil
}

type ListMessagesHandler struct {
	Repo ports.Repository
}

func (h ListMessagesHandler) Handle(ctx context.Context, q ListMessages) (ListMessagesResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	messages, err := h.Repo.ListMessages(ctx, ports.ListMessagesInput{
		TenantID:       q.TenantID,
		ChannelID:      q.ChannelID,
		BeforeSequence: q.BeforeSequence,
		AfterSequence:  q.AfterSequence,
		Limit:          limit,
	})
	if err != nil {
		return ListMessagesResult{}, err
	}
	return ListMessagesResult{Messages: messages, Limit: limit}, nil
}

// reject marks errors that will fail identically on every retry. A missing
// message stays retryable: an edit can arrive before the post it refers to.
func reject(err error) error {
	switch {
	case errors.Is(err, domainerrors.ErrForbidden),
		errors.Is(err, domainerrors.ErrConflict),
		errors.Is(err, domainerrors.ErrEditWindowExpired),
		errors.Is(err, domainerrors.ErrIdempotencyConflict):
		return mediator.Reject(err)
	default:
		return err
	}
}

func now(clock ports.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now().UTC()
}

func parseMentions(content string) []ports.Mention {
	out := make([]ports.Mention, 0)
	for _, word := range strings.Fields(content) {
		if len(word) < 2 || word[0] != '@' {
			continue
		}
		username := strings.Trim(word[1:], ".,!?;:")
		if username == "" {
			continue
		}
		out = append(out, ports.Mention{UserID: username, Username: username})
	}
	return out
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func hashStrings(values ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(sum[:])
}
