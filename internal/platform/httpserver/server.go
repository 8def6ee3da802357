package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chathttp "agora/contexts/community-experience/chat-service/adapters/http"
	messageledger "agora/contexts/platform-ops/message-ledger"
	_ "agora/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

const moduleName = "internal/platform/httpserver"

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	ledger messageledger.Module
	chat   chathttp.Handler
	http   *http.Server
}

func New(
	ledger messageledger.Module,
	chat chathttp.Handler,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		ledger: ledger,
		chat:   chat,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", moduleName,
		"layer", "platform",
		"addr", s.addr,
	)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.registerLedgerRoutes()
	s.registerChatRoutes()
}

// requireAuthorization only checks that a bearer token is present; token
// validation belongs to the identity provider in front of this service.
func requireAuthorization(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	return strings.HasPrefix(header, "Bearer ") && strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) != ""
}

func decodeBody(r *http.Request, target any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return errors.New("request body is required")
	}
	err := json.NewDecoder(r.Body).Decode(target)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
