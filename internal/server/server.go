// Package server exposes the assistant and the live session controller over
// HTTP.
//
// Routes:
//
//	GET  /healthz, /readyz, /metrics
//	POST /api/insights      arbitrary JSON system data → insights JSON
//	POST /api/chat          {history, message} → text/event-stream
//	POST /api/images        {prompt} → {url}
//	POST /api/live/open     → live session info
//	POST /api/live/close    → live session info
//	GET  /api/live          → live session info
//	GET  /api/live/events   → text/event-stream of status changes
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/aria/internal/health"
	"github.com/MrWong99/aria/internal/observe"
	"github.com/MrWong99/aria/internal/session"
	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/provider/content"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// imageFailure is the message returned with a 502 when no image could be
// produced.
const imageFailure = "No se pudo generar la imagen. Inténtalo de nuevo, Papá."

// Assistant is the content surface served under /api.
type Assistant interface {
	Insights(ctx context.Context, systemData any) *content.Insights
	Chat(ctx context.Context, history []content.Message, message string) <-chan string
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Live is the live session surface served under /api/live.
type Live interface {
	Open(ctx context.Context) (session.Info, error)
	Close() error
	Info() session.Info
	Subscribe() (<-chan session.Update, func())
}

// Config holds the server dependencies. Assistant and Live are required.
type Config struct {
	Assistant Assistant
	Live      Live

	// Health serves /healthz and /readyz. Default: no readiness checks.
	Health *health.Handler

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// Telemetry records HTTP request metrics. Default [observe.DefaultMetrics].
	Telemetry *observe.Metrics

	// AllowOrigin, when set, is sent as Access-Control-Allow-Origin.
	AllowOrigin string
}

// Server routes HTTP requests to the assistant and live controller.
type Server struct {
	assistant Assistant
	live      Live
	handler   http.Handler
}

// New builds a Server.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Assistant == nil {
		errs = append(errs, errors.New("server: assistant is required"))
	}
	if cfg.Live == nil {
		errs = append(errs, errors.New("server: live controller is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = observe.DefaultMetrics()
	}

	s := &Server{assistant: cfg.Assistant, live: cfg.Live}

	mux := http.NewServeMux()
	cfg.Health.Register(mux)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	mux.HandleFunc("POST /api/insights", s.handleInsights)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/images", s.handleImage)
	mux.HandleFunc("POST /api/live/open", s.handleLiveOpen)
	mux.HandleFunc("POST /api/live/close", s.handleLiveClose)
	mux.HandleFunc("GET /api/live", s.handleLiveInfo)
	mux.HandleFunc("GET /api/live/events", s.handleLiveEvents)

	s.handler = observe.Middleware(cfg.Telemetry)(cors(cfg.AllowOrigin, mux))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ─── Content ─────────────────────────────────────────────────────────────────

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var data any
	if err := decodeBody(w, r, &data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.assistant.Insights(r.Context(), data))
}

type chatRequest struct {
	History []content.Message `json:"history"`
	Message string            `json:"message"`
}

type chatFragment struct {
	Text string `json:"text"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	for i, m := range req.History {
		if m.Role != content.RoleUser && m.Role != content.RoleAssistant {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("history[%d].role %q is invalid", i, m.Role))
			return
		}
	}

	sse := newEventStream(w)
	for text := range s.assistant.Chat(r.Context(), req.History, req.Message) {
		if err := sse.send("", chatFragment{Text: text}); err != nil {
			observe.Logger(r.Context()).Debug("chat stream client gone", "err", err)
			return
		}
	}
	_ = sse.send("done", struct{}{})
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	url, err := s.assistant.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		observe.Logger(r.Context()).Warn("image generation failed", "err", err)
		writeError(w, http.StatusBadGateway, imageFailure)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{URL: url})
}

// ─── Live ────────────────────────────────────────────────────────────────────

type liveInfo struct {
	State     string     `json:"state"`
	Status    string     `json:"status"`
	SessionID string     `json:"session_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func toLiveInfo(in session.Info) liveInfo {
	out := liveInfo{State: in.State.String(), Status: string(in.Status), SessionID: in.ID}
	if !in.StartedAt.IsZero() {
		out.StartedAt = &in.StartedAt
	}
	return out
}

func (s *Server) handleLiveOpen(w http.ResponseWriter, r *http.Request) {
	info, err := s.live.Open(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toLiveInfo(info))
	case errors.Is(err, audio.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "microphone permission denied")
	case errors.Is(err, session.ErrAborted), errors.Is(err, context.Canceled):
		writeError(w, http.StatusConflict, "live session open was aborted")
	default:
		observe.Logger(r.Context()).Warn("live session open failed", "err", err)
		writeError(w, http.StatusBadGateway, "live session could not be opened")
	}
}

func (s *Server) handleLiveClose(w http.ResponseWriter, _ *http.Request) {
	_ = s.live.Close()
	writeJSON(w, http.StatusOK, toLiveInfo(s.live.Info()))
}

func (s *Server) handleLiveInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toLiveInfo(s.live.Info()))
}

type liveUpdate struct {
	State     string `json:"state"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleLiveEvents(w http.ResponseWriter, r *http.Request) {
	updates, cancel := s.live.Subscribe()
	defer cancel()

	sse := newEventStream(w)
	cur := s.live.Info()
	if err := sse.send("status", liveUpdate{State: cur.State.String(), Status: string(cur.Status), SessionID: cur.ID}); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.send("status", liveUpdate{State: u.State.String(), Status: string(u.Status), SessionID: u.SessionID}); err != nil {
				return
			}
		}
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func cors(origin string, next http.Handler) http.Handler {
	if origin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, traceparent")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
