package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	chaterrors "agora/contexts/community-experience/chat-service/domain/errors"
	chathttp "agora/contexts/community-experience/chat-service/transport/http"
	"agora/internal/shared/mediator"
)

const chatPrefix = "/api/chat/v1/tenants/{tenant_id}"

func (s *Server) registerChatRoutes() {
	s.mux.HandleFunc("POST "+chatPrefix+"/channels/{channel_id}/messages", s.handleChatPostMessage)
	s.mux.HandleFunc("GET "+chatPrefix+"/channels/{channel_id}/messages", s.handleChatListMessages)
	s.mux.HandleFunc("PATCH "+chatPrefix+"/messages/{message_id}", s.handleChatEditMessage)
	s.mux.HandleFunc("DELETE "+chatPrefix+"/messages/{message_id}", s.handleChatDeleteMessage)
}

func (s *Server) handleChatPostMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := chatUser(w, r)
	if !ok {
		return
	}
	var req chathttp.PostMessageRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if req.ClientMessageID == "" {
		req.ClientMessageID = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	resp, err := s.chat.PostMessageHandler(
		r.Context(),
		r.PathValue("tenant_id"),
		r.PathValue("channel_id"),
		userID,
		r.Header.Get("X-Username"),
		req,
	)
	if err != nil {
		writeChatDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleChatListMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := chatUser(w, r); !ok {
		return
	}
	query := r.URL.Query()
	before, err := parseOptionalInt64(query.Get("before"))
	if err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid_before", "before must be an integer")
		return
	}
	after, err := parseOptionalInt64(query.Get("after"))
	if err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid_after", "after must be an integer")
		return
	}
	limit, err := parseOptionalInt64(query.Get("limit"))
	if err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	resp, err := s.chat.ListMessagesHandler(
		r.Context(),
		r.PathValue("tenant_id"),
		r.PathValue("channel_id"),
		before,
		after,
		int(limit),
	)
	if err != nil {
		writeChatDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatEditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := chatUser(w, r)
	if !ok {
		return
	}
	var req chathttp.EditMessageRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.chat.EditMessageHandler(r.Context(), r.PathValue("tenant_id"), r.PathValue("message_id"), userID, req)
	if err != nil {
		writeChatDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatDeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := chatUser(w, r)
	if !ok {
		return
	}
	var req chathttp.DeleteMessageRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.chat.DeleteMessageHandler(r.Context(), r.PathValue("tenant_id"), r.PathValue("message_id"), userID, req)
	if err != nil {
		writeChatDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func chatUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !requireAuthorization(r) {
		writeChatError(w, http.StatusUnauthorized, "unauthorized", "bearer token is required")
		return "", false
	}
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeChatError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func parseOptionalInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func writeChatDomainError(w http.ResponseWriter, err error) {
	if verr, ok := mediator.AsValidationError(err); ok {
		writeChatError(w, http.StatusBadRequest, "validation_failed", verr.Error())
		return
	}
	switch {
	case errors.Is(err, chaterrors.ErrMessageNotFound):
		writeChatError(w, http.StatusNotFound, "message_not_found", err.Error())
	case errors.Is(err, chaterrors.ErrForbidden):
		writeChatError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, chaterrors.ErrEditWindowExpired),
		errors.Is(err, chaterrors.ErrConflict),
		errors.Is(err, chaterrors.ErrIdempotencyConflict):
		writeChatError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, chaterrors.ErrInvalidRequest):
		writeChatError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeChatError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeChatError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, chathttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
