// Package gateway serves the HTTP API used by the dashboard: the chat
// preview endpoint, intent accuracy reporting, and prediction feedback.
package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
	"github.com/rainbow-desk/rainbow/internal/router"
)

// Engine handles one chat turn. Satisfied by the router engine.
type Engine interface {
	HandleMessage(ctx context.Context, phone, content, pushName string) (*router.Response, error)
}

// Server is the HTTP API server.
type Server struct {
	engine Engine
	store  *conversation.Store
	cfg    config.GatewayConfig
	logger *slog.Logger
	http   *http.Server
}

func NewServer(engine Engine, store *conversation.Store, cfg config.GatewayConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: engine,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "gateway"),
	}
}

// Handler builds the route mux. Exposed separately so tests can drive
// it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/preview/chat", s.handlePreviewChat)
	mux.HandleFunc("/intent/accuracy", s.handleAccuracy)
	mux.HandleFunc("/intent/feedback", s.handleFeedback)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	return mux
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("gateway disabled")
		return nil
	}
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return token == s.cfg.Token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type chatRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	PushName   string `json:"pushName,omitempty"`
}

func (s *Server) handlePreviewChat(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad request body: %v", err))
		return
	}
	if conversation.NormalizePhone(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "phone and message are required")
		return
	}

	// A provided history seeds a fresh conversation so the simulator can
	// replay a thread; an existing conversation keeps its own history.
	if len(req.History) > 0 {
		if err := s.seedHistory(&req); err != nil {
			s.logger.Warn("history seed failed", "phone", req.Phone, "error", err)
		}
	}

	resp, err := s.engine.HandleMessage(r.Context(), req.Phone, req.Message, req.PushName)
	if err != nil {
		s.logger.Error("chat turn failed", "phone", req.Phone, "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) seedHistory(req *chatRequest) error {
	existing, err := s.store.History(req.Phone, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if _, _, err := s.store.GetOrCreate(req.Phone, req.PushName); err != nil {
		return err
	}
	for _, m := range req.History {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		_, err := s.store.AppendMessage(&conversation.Message{
			Phone:   req.Phone,
			Role:    role,
			Content: m.Content,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.store.Accuracy()
	if err != nil {
		s.logger.Error("accuracy query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "accuracy query failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type feedbackRequest struct {
	PredictionID int64  `json:"predictionId,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Verdict      string `json:"verdict"` // "up" or "down"
	ActualIntent string `json:"actualIntent,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad request body: %v", err))
		return
	}
	if req.Verdict != "up" && req.Verdict != "down" {
		writeError(w, http.StatusBadRequest, `verdict must be "up" or "down"`)
		return
	}

	id := req.PredictionID
	if id == 0 {
		latest, err := s.store.LatestPredictionID(req.Phone)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "no predictions to review")
				return
			}
			writeError(w, http.StatusInternalServerError, "prediction lookup failed")
			return
		}
		id = latest
	}

	err := s.store.RecordFeedback(id, req.Verdict == "up", req.ActualIntent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "prediction not found")
			return
		}
		s.logger.Error("feedback update failed", "prediction", id, "error", err)
		writeError(w, http.StatusInternalServerError, "feedback update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "predictionId": id})
}
