// Package server exposes generation over HTTP and pushes message updates to
// websocket subscribers.
//
// Endpoints:
//   - POST /api/generate                       run a generation
//   - POST /api/messages/{messageID}/cancel    request cancellation
//   - GET  /api/messages/{messageID}/status    in-flight state
//   - GET  /api/messages/{messageID}           stored message
//   - GET  /api/models                         catalog, ?provider= filter
//   - GET  /api/chats/{chatID}/ws              live message updates
//   - GET  /healthz
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/chat"
	"aichat/pkg/generation"
	"aichat/pkg/store"
	"aichat/pkg/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBody = 1 << 20

// MessageReader loads stored messages.
type MessageReader interface {
	GetMessage(ctx context.Context, messageID string) (store.Message, error)
}

// Server is the HTTP front end.
type Server struct {
	generator *chat.Generator
	catalog   *ai.Catalog
	messages  MessageReader
	hub       *Hub

	httpServer *http.Server
	inflight   sync.WaitGroup
}

// New creates a Server. messages may be nil when no store is configured.
func New(addr string, generator *chat.Generator, catalog *ai.Catalog, messages MessageReader, hub *Hub) *Server {
	s := &Server{
		generator: generator,
		catalog:   catalog,
		messages:  messages,
		hub:       hub,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Route("/messages/{messageID}", func(r chi.Router) {
			r.Get("/", s.handleMessage)
			r.Post("/cancel", s.handleCancel)
			r.Get("/status", s.handleStatus)
		})
		r.Get("/models", s.handleModels)
		r.Get("/chats/{chatID}/ws", s.handleWebSocket)
	})
	r.Get("/healthz", s.handleHealth)
	return r
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("server_listen", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for background generations.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("server_shutdown_inflight_abandoned")
	}
	return err
}

type generateResponse struct {
	MessageID string `json:"message_id"`
	chat.Result
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A client disconnect must not abort the generation; cancel is explicit.
	ctx := context.WithoutCancel(r.Context())

	if r.URL.Query().Get("async") == "true" {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.generator.Generate(ctx, req)
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"message_id": req.MessageID})
		return
	}

	res := s.generator.Generate(ctx, req)
	writeJSON(w, http.StatusOK, generateResponse{MessageID: req.MessageID, Result: res})
}

func validateRequest(req chat.Request) error {
	var missing []string
	if req.UserID == "" {
		missing = append(missing, "user_id")
	}
	if req.ChatID == "" {
		missing = append(missing, "chat_id")
	}
	if req.MessageID == "" {
		missing = append(missing, "message_id")
	}
	if req.ModelID == "" {
		missing = append(missing, "model_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	for i, h := range req.History {
		switch h.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Errorf("history[%d]: invalid role %q", i, h.Role)
		}
	}
	return nil
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	controller := s.generator.Controller()

	if !controller.IsGenerating(r.Context(), messageID) {
		writeJSON(w, http.StatusOK, map[string]any{"message_id": messageID, "cancelled": false})
		return
	}
	if err := controller.Cancel(r.Context(), messageID); err != nil {
		slog.Error("http_cancel_failed", "message_id", messageID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel generation")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"message_id": messageID, "cancelled": true})
}

type statusResponse struct {
	MessageID  string    `json:"message_id"`
	Generating bool      `json:"generating"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	Searching  bool      `json:"searching,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	gen, err := s.generator.Controller().Status(r.Context(), messageID)
	if errors.Is(err, generation.ErrNotFound) {
		writeJSON(w, http.StatusOK, statusResponse{MessageID: messageID})
		return
	}
	if err != nil {
		slog.Error("http_status_failed", "message_id", messageID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load generation status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		MessageID:  messageID,
		Generating: true,
		Cancelled:  gen.Cancelled,
		Searching:  gen.Searching,
		Error:      gen.Error,
		StartedAt:  gen.CreatedAt,
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		writeError(w, http.StatusNotImplemented, "message storage is not configured")
		return
	}
	messageID := chi.URLParam(r, "messageID")

	msg, err := s.messages.GetMessage(r.Context(), messageID)
	if errors.Is(err, store.ErrMessageNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		slog.Error("http_message_failed", "message_id", messageID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type providerModels struct {
	ai.ProviderInfo
	Models []ai.Model `json:"models"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	filter := ai.ProviderID(r.URL.Query().Get("provider"))

	out := make([]providerModels, 0)
	for _, p := range s.catalog.Providers() {
		if filter != "" && p.ID != filter {
			continue
		}
		out = append(out, providerModels{ProviderInfo: p, Models: s.catalog.Models(p.ID)})
	}
	if filter != "" && len(out) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", filter))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotImplemented, "live updates are not enabled")
		return
	}
	s.hub.ServeChat(w, r, chi.URLParam(r, "chatID"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Summary(),
		"build":   version.Get(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// Nothing written, or the connection was hijacked for a websocket.
			status = http.StatusOK
		}
		slog.Info("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
