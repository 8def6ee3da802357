package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	ledgererrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	ledgerhttp "agora/contexts/platform-ops/message-ledger/transport/http"
)

const ledgerPrefix = "/api/ledger/v1/tenants/{tenant_id}"

func (s *Server) registerLedgerRoutes() {
	s.mux.HandleFunc("GET "+ledgerPrefix+"/messages/{message_id}", s.handleLedgerGetRecord)
	s.mux.HandleFunc("GET "+ledgerPrefix+"/messages/{message_id}/processed", s.handleLedgerIsProcessed)
	s.mux.HandleFunc("POST "+ledgerPrefix+"/messages/{message_id}/{action}", s.handleLedgerTransition)
	s.mux.HandleFunc("GET "+ledgerPrefix+"/retries", s.handleLedgerReadyForRetry)
	s.mux.HandleFunc("GET "+ledgerPrefix+"/dead-letters", s.handleLedgerDeadLettered)
	s.mux.HandleFunc("GET "+ledgerPrefix+"/statistics", s.handleLedgerStatistics)
	s.mux.HandleFunc("GET "+ledgerPrefix+"/content/{hash}", s.handleLedgerContentLookup)
	s.mux.HandleFunc("POST "+ledgerPrefix+"/cleanup", s.handleLedgerCleanup)
}

func (s *Server) handleLedgerGetRecord(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeLedger(w, r) {
		return
	}
	resp, err := s.ledger.Handler.GetRecordHandler(r.Context(), r.PathValue("tenant_id"), r.PathValue("message_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerIsProcessed(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeLedger(w, r) {
		return
	}
	resp, err := s.ledger.Handler.IsProcessedHandler(r.Context(), r.PathValue("tenant_id"), r.PathValue("message_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerReadyForRetry(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeLedger(w, r) {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ReadyForRetryHandler(r.Context(), r.PathValue("tenant_id"), limit)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerDeadLettered(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeLedger(w, r) {
		return
	}
	skip, ok := queryInt(w, r, "skip")
	if !ok {
		return
	}
	take, ok := queryInt(w, r, "take")
	if !ok {
		return
	}
	query := r.URL.Query()
	resp, err := s.ledger.Handler.DeadLetteredHandler(r.Context(), r.PathValue("tenant_id"), ledgerhttp.DeadLetterListRequest{
		From: query.Get("from"),
		To:   query.Get("to"),
		Skip: skip,
		Take: take,
	})
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerStatistics(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeLedger(w, r) {
		return
	}
	resp, err := s.ledger.Handler.StatisticsHandler(r.Context(), r.PathValue("tenant_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerContentLookup(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeLedger(w, r) {
		return
	}
	resp, err := s.ledger.Handler.ContentLookupHandler(r.Context(), r.PathValue("tenant_id"), r.PathValue("hash"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.ledgerActor(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.TransitionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.TransitionHandler(
		r.Context(),
		actor,
		r.PathValue("tenant_id"),
		r.PathValue("message_id"),
		r.PathValue("action"),
		req,
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerCleanup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ledgerActor(w, r); !ok {
		return
	}
	var req ledgerhttp.CleanupRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.CleanupHandler(r.Context(), r.PathValue("tenant_id"), req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authorizeLedger(w http.ResponseWriter, r *http.Request) bool {
	if !requireAuthorization(r) {
		writeLedgerError(w, http.StatusUnauthorized, "unauthorized", "bearer token is required")
		return false
	}
	return true
}

// ledgerActor resolves the operator recorded on manual transitions.
func (s *Server) ledgerActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !s.authorizeLedger(w, r) {
		return "", false
	}
	actor := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if actor == "" {
		actor = strings.TrimSpace(r.Header.Get("X-Admin-Id"))
	}
	if actor == "" {
		writeLedgerError(w, http.StatusBadRequest, "missing_actor", "X-User-Id header is required")
		return "", false
	}
	return actor, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an integer")
		return 0, false
	}
	return value, true
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgererrors.ErrRecordNotFound),
		errors.Is(err, ledgererrors.ErrDeadLetterNotFound):
		writeLedgerError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidRequest),
		errors.Is(err, ledgererrors.ErrInvalidRetention),
		errors.Is(err, ledgererrors.ErrInvalidMessage):
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidTransition),
		errors.Is(err, ledgererrors.ErrStatusConflict):
		writeLedgerError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
