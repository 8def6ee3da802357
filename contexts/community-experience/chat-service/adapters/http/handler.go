package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"agora/contexts/community-experience/chat-service/application"
	"agora/contexts/community-experience/chat-service/ports"
	httptransport "agora/contexts/community-experience/chat-service/transport/http"
	"agora/internal/shared/mediator"
)

// Handler sends every chat request through the mediator so HTTP callers get
// the same validation and logging pipeline as broker-delivered commands.
type Handler struct {
	Mediator *mediator.Mediator
	Logger   *slog.Logger
}

// PostMessageHandler godoc
// @Summary Post a chat message
// @Tags chat
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param channel_id path string true "Channel id"
// @Param X-User-Id header string true "Author user id"
// @Param request body httptransport.PostMessageRequest true "Message"
// @Success 201 {object} httptransport.MessageResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /chat/v1/tenants/{tenant_id}/channels/{channel_id}/messages [post]
func (h Handler) PostMessageHandler(
	ctx context.Context,
	tenantID string,
	channelID string,
	userID string,
	username string,
	req httptransport.PostMessageRequest,
) (httptransport.MessageResponse, error) {
	item, err := mediator.Send[ports.Message](ctx, h.Mediator, application.PostMessage{
		TenantID:        tenantID,
		ChannelID:       channelID,
		ThreadID:        req.ThreadID,
		ClientMessageID: req.ClientMessageID,
		UserID:          userID,
		Username:        username,
		Content:         req.Content,
	})
	if err != nil {
		return httptransport.MessageResponse{}, err
	}
	return messageResponse(item), nil
}

// EditMessageHandler godoc
// @Summary Edit a chat message
// @Tags chat
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param message_id path string true "Message id"
// @Param X-User-Id header string true "Author user id"
// @Param request body httptransport.EditMessageRequest true "New content"
// @Success 200 {object} httptransport.MessageResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /chat/v1/tenants/{tenant_id}/messages/{message_id} [patch]
func (h Handler) EditMessageHandler(
	ctx context.Context,
	tenantID string,
	messageID string,
	userID string,
	req httptransport.EditMessageRequest,
) (httptransport.MessageResponse, error) {
	item, err := mediator.Send[ports.Message](ctx, h.Mediator, application.EditMessage{
		TenantID:  tenantID,
		MessageID: messageID,
		UserID:    userID,
		Content:   req.Content,
	})
	if err != nil {
		return httptransport.MessageResponse{}, err
	}
	return messageResponse(item), nil
}

// DeleteMessageHandler godoc
// @Summary Delete a chat message
// @Tags chat
// @Accept json
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param message_id path string true "Message id"
// @Param X-User-Id header string true "Author user id"
// @Param request body httptransport.DeleteMessageRequest false "Reason"
// @Success 200 {object} httptransport.MessageResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Router /chat/v1/tenants/{tenant_id}/messages/{message_id} [delete]
func (h Handler) DeleteMessageHandler(
	ctx context.Context,
	tenantID string,
	messageID string,
	userID string,
	req httptransport.DeleteMessageRequest,
) (httptransport.MessageResponse, error) {
	item, err := mediator.Send[ports.Message](ctx, h.Mediator, application.DeleteMessage{
		TenantID:  tenantID,
		MessageID: messageID,
		UserID:    userID,
		Reason:    req.Reason,
	})
	if err != nil {
		return httptransport.MessageResponse{}, err
	}
	return messageResponse(item), nil
}

// ListMessagesHandler godoc
// @Summary List channel messages, newest first
// @Tags chat
// @Produce json
// @Param tenant_id path string true "Tenant id"
// @Param channel_id path string true "Channel id"
// @Param before query int false "Exclusive upper sequence bound"
// @Param after query int false "Exclusive lower sequence bound"
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} httptransport.ListMessagesResponse
// @Router /chat/v1/tenants/{tenant_id}/channels/{channel_id}/messages [get]
func (h Handler) ListMessagesHandler(
	ctx context.Context,
	tenantID string,
	channelID string,
	beforeSequence int64,
	afterSequence int64,
	limit int,
) (httptransport.ListMessagesResponse, error) {
	result, err := mediator.Query[application.ListMessagesResult](ctx, h.Mediator, application.ListMessages{
		TenantID:       tenantID,
		ChannelID:      channelID,
		BeforeSequence: beforeSequence,
		AfterSequence:  afterSequence,
		Limit:          limit,
	})
	if err != nil {
		return httptransport.ListMessagesResponse{}, err
	}
	resp := httptransport.ListMessagesResponse{Status: "success"}
	resp.Data.Messages = make([]httptransport.MessageDTO, 0, len(result.Messages))
	for _, item := range result.Messages {
		resp.Data.Messages = append(resp.Data.Messages, toMessageDTO(item))
	}
	resp.Data.Limit = result.Limit
	return resp, nil
}

func messageResponse(item ports.Message) httptransport.MessageResponse {
	resp := httptransport.MessageResponse{Status: "success"}
	resp.Data.Message = toMessageDTO(item)
	return resp
}

func toMessageDTO(item ports.Message) httptransport.MessageDTO {
	mentions := make([]httptransport.MentionDTO, 0, len(item.Mentions))
	for _, mention := range item.Mentions {
		mentions = append(mentions, httptransport.MentionDTO{UserID: mention.UserID, Username: mention.Username})
	}
	dto := httptransport.MessageDTO{
		MessageID:       item.MessageID,
		ClientMessageID: item.ClientMessageID,
		ChannelID:       item.ChannelID,
		ThreadID:        item.ThreadID,
		UserID:          item.UserID,
		Username:        item.Username,
		Content:         item.Content,
		SequenceNumber:  item.SequenceNumber,
		Mentions:        mentions,
		CreatedAt:       item.CreatedAt.UTC().Format(time.RFC3339),
		Edited:          item.Edited,
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if item.DeletedAt != nil {
		dto.DeletedAt = item.DeletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
