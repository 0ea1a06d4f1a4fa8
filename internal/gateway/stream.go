package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/buddybot89/claw-control/internal/hub"
	"github.com/buddybot89/claw-control/internal/store"
)

const heartbeatInterval = 30 * time.Second

// handleEvents implements GET /api/events, the server-sent-events
// stream. Every connected client sees every board mutation; the
// ?demo=true flag additionally starts a per-connection demo driver.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	demo := r.URL.Query().Get("demo") == "true"
	sub := s.cfg.Hub.Subscribe(demo)
	defer s.cfg.Hub.Unsubscribe(sub)
	s.trackStreamClient(1)
	defer s.trackStreamClient(-1)

	ctx := r.Context()

	// First frame: the full board snapshot, so the client renders
	// without a follow-up fetch.
	tasks, err := s.cfg.Store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		s.cfg.Logger.Error("sse: load tasks for init", "error", err)
		return
	}
	agents, err := s.cfg.Store.ListAgents(ctx)
	if err != nil {
		s.cfg.Logger.Error("sse: load agents for init", "error", err)
		return
	}
	snapshot := map[string]any{
		"tasks":    tasks,
		"agents":   agents,
		"demoMode": demo,
	}
	if err := s.cfg.Hub.Send(sub, hub.EventInit, snapshot); err != nil {
		s.cfg.Logger.Error("sse: send init", "error", err)
		return
	}

	if demo {
		go s.runDemo(ctx, sub)
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Debug("sse: client disconnected", "client_id", sub.ID())
			return

		case <-heartbeat.C:
			if _, err := w.Write(hub.HeartbeatFrame); err != nil {
				return
			}
			flusher.Flush()

		case env, ok := <-sub.Ch():
			if !ok {
				return
			}
			if _, err := w.Write(env.SSE()); err != nil {
				s.cfg.Logger.Debug("sse: write failed", "client_id", sub.ID(), "error", err)
				return
			}
			flusher.Flush()
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.BroadcastsTotal.Add(ctx, 1)
			}
		}
	}
}

// trackStreamClient records connect and disconnect on a background
// context so the decrement survives request cancellation.
func (s *Server) trackStreamClient(delta int64) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.StreamClients.Add(context.Background(), delta)
	}
}
