// Package server exposes the pipeline's control and event surface over
// HTTP: start/stop operations, a websocket event stream, Prometheus
// metrics, and a liveness probe. It renders nothing — the event stream is
// the boundary to any UI or automation layer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sotto-voice/sotto/internal/health"
	"github.com/sotto-voice/sotto/internal/observe"
	"github.com/sotto-voice/sotto/internal/pipeline"
	"github.com/sotto-voice/sotto/pkg/audio/capture"
)

// Pipeline is the control surface the server drives. Satisfied by
// [pipeline.Controller].
type Pipeline interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() pipeline.State
}

// Server serves the HTTP control and event endpoints.
type Server struct {
	pipe    Pipeline
	hub     *Hub
	metrics *observe.Metrics
	health  *health.Handler
}

// New returns a Server driving pipe and streaming events from hub. The hub
// must also be registered as the pipeline's event sink by the caller. The
// checkers, if any, back the /readyz readiness probe.
func New(pipe Pipeline, hub *Hub, metrics *observe.Metrics, checkers ...health.Checker) *Server {
	return &Server{
		pipe:    pipe,
		hub:     hub,
		metrics: metrics,
		health:  health.New(checkers...),
	}
}

// Handler returns the full route table:
//
//	POST /start    — begin a recording session
//	POST /stop     — end the recording session
//	GET  /status   — current pipeline state
//	GET  /healthz  — liveness probe
//	GET  /readyz   — readiness probe
//	GET  /events   — websocket event stream
//	GET  /metrics  — Prometheus metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /status", s.handleStatus)
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// The websocket route stays outside the middleware: the observability
	// wrapper's response recorder hides the hijacker the upgrade needs.
	outer := http.NewServeMux()
	outer.HandleFunc("GET /events", s.handleEvents)
	outer.Handle("/", observe.Middleware(s.metrics)(mux))
	return outer
}

// stateResponse is the JSON body for control and status endpoints.
type stateResponse struct {
	State pipeline.State `json:"state"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	err := s.pipe.Start(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stateResponse{State: s.pipe.State()})
	case errors.Is(err, pipeline.ErrAlreadyRecording):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.pipe.Stop(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stateResponse{State: s.pipe.State()})
	case errors.Is(err, pipeline.ErrNotRecording):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{State: s.pipe.State()})
}

// handleEvents upgrades to a websocket and forwards pipeline events as JSON
// until the peer disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("event stream upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				// Peer gone; nothing to report beyond debug.
				slog.Debug("event stream write failed", "err", err)
				return
			}
		}
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
