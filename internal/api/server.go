// Package api exposes the thin HTTP surface over the orchestration engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "hellobot-orchestrator/internal/common/errors"
	"hellobot-orchestrator/internal/models"
	"hellobot-orchestrator/internal/orchestrator"
)

const genericApology = "Sorry, something went wrong on our side. Please try again in a moment."

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TurnRecorder receives per-turn telemetry. May be nil.
type TurnRecorder interface {
	RecordTurnProcessed(ctx context.Context, status string)
	RecordTurnDuration(ctx context.Context, duration time.Duration, status string)
}

// Server wires HTTP routes to the engine.
type Server struct {
	engine   *orchestrator.Engine
	pingers  map[string]Pinger
	recorder TurnRecorder
	logger   Logger
	mux      *http.ServeMux
}

func NewServer(engine *orchestrator.Engine, pingers map[string]Pinger, recorder TurnRecorder, log Logger) *Server {
	s := &Server{
		engine:   engine,
		pingers:  pingers,
		recorder: recorder,
		logger: log.With(map[string]interface{}{
			"component": "api",
		}),
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /conversations/{id}", s.handleSnapshot)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the root handler for the HTTP server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type chatRequest struct {
	ConversationID string `json:"conversationId"`
	UserMessage    string `json:"userMessage"`
}

type chatResponse struct {
	ConversationID    string            `json:"conversationId"`
	Intent            string            `json:"intent,omitempty"`
	Slots             map[string]string `json:"slots"`
	ResponseText      string            `json:"responseText"`
	AwaitingMoreInput bool              `json:"awaitingMoreInput"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		s.rejectRequest(w, "userMessage is required")
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	start := time.Now()
	result, err := s.engine.HandleTurn(r.Context(), conversationID, req.UserMessage)
	s.recordTurn(r.Context(), start, err)
	if err != nil {
		// Detail went to the engine's logger and metrics. The user only
		// ever sees a generic apology.
		s.writeJSON(w, http.StatusInternalServerError, chatResponse{
			ConversationID: conversationID,
			Slots:          map[string]string{},
			ResponseText:   genericApology,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		ConversationID:    result.ConversationID,
		Intent:            result.Intent,
		Slots:             result.Slots,
		ResponseText:      result.ResponseText,
		AwaitingMoreInput: result.AwaitingMoreInput,
	})
}

type snapshotResponse struct {
	ConversationID string            `json:"conversationId"`
	Intent         string            `json:"intent,omitempty"`
	Status         models.Status     `json:"status"`
	Slots          map[string]string `json:"slots"`
	History        []models.Message  `json:"history"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := s.engine.Snapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, orchestrator.ErrConversationNotFound) {
			s.writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("snapshot failed", map[string]interface{}{
			"conversationId": id,
			"error":          err.Error(),
		})
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, snapshotResponse{
		ConversationID: conv.ID,
		Intent:         conv.ActiveIntent,
		Status:         conv.Status,
		Slots:          conv.Slots,
		History:        conv.Turns,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.pingers))
	for name, pinger := range s.pingers {
		if err := pinger.Ping(ctx); err != nil {
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	s.writeJSON(w, status, checks)
}

func (s *Server) recordTurn(ctx context.Context, start time.Time, err error) {
	if s.recorder == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.recorder.RecordTurnProcessed(ctx, status)
	s.recorder.RecordTurnDuration(ctx, time.Since(start), status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// rejectRequest answers a malformed chat request with 400 and records the
// rejection in the structured taxonomy.
func (s *Server) rejectRequest(w http.ResponseWriter, details string) {
	stdErr := apperrors.NewInvalidRequestError(details)
	s.logger.Info("rejected request", map[string]interface{}{
		"code":    string(stdErr.Code),
		"details": stdErr.Details,
	})
	s.writeError(w, http.StatusBadRequest, stdErr.Details)
}
