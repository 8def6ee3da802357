package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agora/contexts/community-experience/chat-service/adapters/memory"
	"agora/contexts/community-experience/chat-service/application"
	domainerrors "agora/contexts/community-experience/chat-service/domain/errors"
	"agora/contexts/community-experience/chat-service/ports"
	"agora/internal/shared/mediator"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newChat(t *testing.T) (*mediator.Mediator, *mediator.Codec, *fixedClock) {
	t.Helper()
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	registry := mediator.NewRegistry()
	registry.Use(mediator.Validation())
	codec := mediator.NewCodec()
	err := application.Register(registry, codec, application.Handlers{
		Post:   application.PostMessageHandler{Repo: store, IDGenerator: store, Clock: clock},
		Edit:   application.EditMessageHandler{Repo: store, Clock: clock},
		Delete: application.DeleteMessageHandler{Repo: store, Clock: clock},
		List:   application.ListMessagesHandler{Repo: store},
	})
	if err != nil {
		t.Fatalf("register chat handlers: %v", err)
	}
	return registry.Build(), codec, clock
}

func post(t *testing.T, m *mediator.Mediator, tenantID string, content string) ports.Message {
	t.Helper()
	msg, err := mediator.Send[ports.Message](context.Background(), m, application.PostMessage{
		TenantID:  tenantID,
		ChannelID: "general",
		UserID:    "u-1",
		Content:   content,
	})
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	return msg
}

func TestPostAndListAreTenantScoped(t *testing.T) {
	m, _, _ := newChat(t)
	first := post(t, m, "tenant-a", "hello @bob!")
	post(t, m, "tenant-a", "second")
	post(t, m, "tenant-b", "other tenant")

	if first.SequenceNumber != 1 || len(first.Mentions) != 1 || first.Mentions[0].Username != "bob" {
		t.Fatalf("unexpected first message: %+v", first)
	}

	result, err := mediator.Query[application.ListMessagesResult](context.Background(), m, application.ListMessages{
		TenantID:  "tenant-a",
		ChannelID: "general",
	})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if result.Limit != 50 || len(result.Messages) != 2 {
		t.Fatalf("expected two tenant-a messages with default limit, got %d (limit %d)", len(result.Messages), result.Limit)
	}
	if result.Messages[0].Content != "second" {
		t.Fatalf("expected newest first, got %q", result.Messages[0].Content)
	}

	paged, err := mediator.Query[application.ListMessagesResult](context.Background(), m, application.ListMessages{
		TenantID:       "tenant-a",
		ChannelID:      "general",
		BeforeSequence: 2,
	})
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(paged.Messages) != 1 || paged.Messages[0].MessageID != first.MessageID {
		t.Fatalf("unexpected page: %+v", paged.Messages)
	}
}

func TestPostWithClientMessageIDIsIdempotent(t *testing.T) {
	m, _, _ := newChat(t)
	cmd := application.PostMessage{
		TenantID:        "tenant-a",
		ChannelID:       "general",
		ClientMessageID: "c-1",
		UserID:          "u-1",
		Content:         "once",
	}
	first, err := mediator.Send[ports.Message](context.Background(), m, cmd)
	if err != nil {
		t.Fatalf("first post: %v", err)
	}
	replay, err := mediator.Send[ports.Message](context.Background(), m, cmd)
	if err != nil {
		t.Fatalf("replayed post: %v", err)
	}
	if replay.MessageID != first.MessageID {
		t.Fatalf("expected replay to return %s, got %s", first.MessageID, replay.MessageID)
	}

	cmd.Content = "different"
	_, err = mediator.Send[ports.Message](context.Background(), m, cmd)
	if !errors.Is(err, domainerrors.ErrIdempotencyConflict) || !mediator.IsPermanent(err) {
		t.Fatalf("expected permanent idempotency conflict, got %v", err)
	}
}

func TestPostRejectsBlankContent(t *testing.T) {
	m, _, _ := newChat(t)
	_, err := mediator.Send[ports.Message](context.Background(), m, application.PostMessage{
		TenantID:  "tenant-a",
		ChannelID: "general",
		UserID:    "u-1",
		Content:   "   ",
	})
	verr, ok := mediator.AsValidationError(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(verr.Error(), "content") {
		t.Fatalf("expected content failure, got %v", verr)
	}
}

func TestEditRulesAreRejectedPermanently(t *testing.T) {
	m, _, clock := newChat(t)
	msg := post(t, m, "tenant-a", "draft")

	edited, err := mediator.Send[ports.Message](context.Background(), m, application.EditMessage{
		TenantID:  "tenant-a",
		MessageID: msg.MessageID,
		UserID:    "u-1",
		Content:   "final",
	})
	if err != nil || !edited.Edited || edited.Content != "final" {
		t.Fatalf("expected edit to succeed, got %+v err=%v", edited, err)
	}

	_, err = mediator.Send[ports.Message](context.Background(), m, application.EditMessage{
		TenantID:  "tenant-a",
		MessageID: msg.MessageID,
		UserID:    "u-2",
		Content:   "hijack",
	})
	if !errors.Is(err, domainerrors.ErrForbidden) || !mediator.IsPermanent(err) {
		t.Fatalf("expected permanent forbidden, got %v", err)
	}

	clock.now = clock.now.Add(application.DefaultEditWindow + time.Second)
	_, err = mediator.Send[ports.Message](context.Background(), m, application.EditMessage{
		TenantID:  "tenant-a",
		MessageID: msg.MessageID,
		UserID:    "u-1",
		Content:   "late",
	})
	if !errors.Is(err, domainerrors.ErrEditWindowExpired) {
		t.Fatalf("expected edit window error, got %v", err)
	}

	_, err = mediator.Send[ports.Message](context.Background(), m, application.EditMessage{
		TenantID:  "tenant-b",
		MessageID: msg.MessageID,
		UserID:    "u-1",
		Content:   "cross tenant",
	})
	if !errors.Is(err, domainerrors.ErrMessageNotFound) || mediator.IsPermanent(err) {
		t.Fatalf("expected retryable not found, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m, _, _ := newChat(t)
	msg := post(t, m, "tenant-a", "bye")
	cmd := application.DeleteMessage{TenantID: "tenant-a", MessageID: msg.MessageID, UserID: "u-1", Reason: "typo"}

	deleted, err := mediator.Send[ports.Message](context.Background(), m, cmd)
	if err != nil || deleted.DeletedAt == nil || deleted.Content != "[Deleted]" {
		t.Fatalf("expected soft delete, got %+v err=%v", deleted, err)
	}
	again, err := mediator.Send[ports.Message](context.Background(), m, cmd)
	if err != nil || !again.DeletedAt.Equal(*deleted.DeletedAt) {
		t.Fatalf("expected repeated delete to be a no-op, got %+v err=%v", again, err)
	}
}

func TestCodecDecodesChatCommands(t *testing.T) {
	m, codec, _ := newChat(t)
	req, err := codec.Decode(application.PostMessageName, []byte(`{"tenant_id":"tenant-a","channel_id":"general","user_id":"u-1","content":"from broker"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := m.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if msg, ok := out.(ports.Message); !ok || msg.Content != "from broker" {
		t.Fatalf("unexpected dispatch result %#v", out)
	}
	if _, err := codec.Decode(application.ListMessagesName, []byte(`{}`)); !errors.Is(err, mediator.ErrNoHandler) {
		t.Fatalf("queries must not be decodable from the broker, got %v", err)
	}
}
