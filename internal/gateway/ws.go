package gateway

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/buddybot89/claw-control/internal/hub"
	"github.com/buddybot89/claw-control/internal/store"
)

// wsEvent is the JSON shape mirrored on the WebSocket endpoint.
type wsEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// handleWS implements GET /api/ws, a WebSocket mirror of the event
// stream for clients that cannot use SSE. It carries the same named
// events with the same payloads, including the init snapshot.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowOrigins,
	})
	if err != nil {
		s.cfg.Logger.Debug("ws: accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	demo := r.URL.Query().Get("demo") == "true"
	sub := s.cfg.Hub.Subscribe(demo)
	defer s.cfg.Hub.Unsubscribe(sub)
	s.trackStreamClient(1)
	defer s.trackStreamClient(-1)

	ctx := r.Context()

	tasks, err := s.cfg.Store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		s.cfg.Logger.Error("ws: load tasks for init", "error", err)
		return
	}
	agents, err := s.cfg.Store.ListAgents(ctx)
	if err != nil {
		s.cfg.Logger.Error("ws: load agents for init", "error", err)
		return
	}
	if err := wsjson.Write(ctx, conn, wsEvent{
		Event: hub.EventInit,
		Data:  map[string]any{"tasks": tasks, "agents": agents, "demoMode": demo},
	}); err != nil {
		return
	}

	if demo {
		go s.runDemo(ctx, sub)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.Ch():
			if !ok {
				return
			}
			// Forward the already-encoded payload untouched.
			if err := wsjson.Write(ctx, conn, wsEvent{Event: env.Event, Data: rawJSON(env.Data)}); err != nil {
				s.cfg.Logger.Debug("ws: write failed", "client_id", sub.ID(), "error", err)
				return
			}
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.BroadcastsTotal.Add(ctx, 1)
			}
		}
	}
}

// rawJSON lets pre-marshaled bytes pass through wsjson unchanged.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }
