// Package gateway exposes the dashboard REST API and the live event
// stream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/buddybot89/claw-control/internal/hub"
	"github.com/buddybot89/claw-control/internal/otel"
	"github.com/buddybot89/claw-control/internal/store"
)

// Config holds the gateway dependencies.
type Config struct {
	Store  *store.Store
	Hub    *hub.Hub
	Logger *slog.Logger

	// Metrics is optional; nil disables instrument recording.
	Metrics *otel.Metrics

	// LoadAgents re-reads the roster file for POST /api/config/reload.
	// It returns the entries and the source path (empty for defaults).
	LoadAgents func() ([]store.NewAgent, string)

	// AllowOrigins controls CORS and browser WebSocket origins.
	// Empty means same-origin only.
	AllowOrigins []string
}

// Server is the HTTP gateway.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/ws", s.handleWS)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskByID)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/agents/", s.handleAgentByID)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/board", s.handleBoard)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/config/reload", s.handleConfigReload)
	mux.HandleFunc("/api/config/status", s.handleConfigStatus)

	handler := http.Handler(mux)
	handler = RequestSizeLimitMiddleware(1 << 20)(handler)
	handler = NewCORSMiddleware(s.cfg.AllowOrigins)(handler)
	handler = s.requestLogMiddleware(handler)
	return handler
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RequestDuration.Record(r.Context(), elapsed.Seconds())
		}
		s.cfg.Logger.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", elapsed)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	dbOK := s.cfg.Store.Ping(r.Context()) == nil
	payload := map[string]any{
		"healthy": dbOK,
		"db_ok":   dbOK,
		"engine":  s.cfg.Store.Adapter().Kind(),
		"clients": s.cfg.Hub.SubscriberCount(),
	}
	if !dbOK {
		writeJSON(w, http.StatusServiceUnavailable, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- tasks ---

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := store.TaskFilter{
			Status:  r.URL.Query().Get("status"),
			AgentID: r.URL.Query().Get("agent_id"),
		}
		tasks, err := s.cfg.Store.ListTasks(r.Context(), filter)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)

	case http.MethodPost:
		var in store.NewTask
		if !s.decode(w, r, &in) {
			return
		}
		task, err := s.cfg.Store.CreateTask(r.Context(), in)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.recordMutation(r.Context(), "task.create")
		s.cfg.Hub.Publish(hub.EventTaskCreated, task)
		writeJSON(w, http.StatusCreated, task)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseIDPath(r.URL.Path, "/api/tasks/")
	if !ok {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		task, err := s.cfg.Store.GetTask(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)

	case action == "" && r.Method == http.MethodPut:
		var patch store.TaskPatch
		if !s.decode(w, r, &patch) {
			return
		}
		task, err := s.cfg.Store.UpdateTask(r.Context(), id, patch)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.recordMutation(r.Context(), "task.update")
		s.cfg.Hub.Publish(hub.EventTaskUpdated, task)
		writeJSON(w, http.StatusOK, task)

	case action == "" && r.Method == http.MethodDelete:
		task, err := s.cfg.Store.DeleteTask(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.recordMutation(r.Context(), "task.delete")
		s.cfg.Hub.Publish(hub.EventTaskDeleted, map[string]any{"id": task.ID})
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})

	case action == "progress" && r.Method == http.MethodPost:
		task, prev, err := s.cfg.Store.AdvanceTask(r.Context(), id)
		if errors.Is(err, store.ErrCompleted) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "Task already completed",
			})
			return
		}
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.recordMutation(r.Context(), "task.progress")
		s.cfg.Hub.Publish(hub.EventTaskUpdated, task)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"previousStatus": prev,
			"newStatus":      task.Status,
			"task":           task,
		})

	case action == "complete" && r.Method == http.MethodPost:
		task, err := s.cfg.Store.CompleteTask(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.recordMutation(r.Context(), "task.complete")
		s.cfg.Hub.Publish(hub.EventTaskUpdated, task)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- agents ---

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		agents, err := s.cfg.Store.ListAgents(r.Context())
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, agents)

	case http.MethodPost:
		var in store.NewAgent
		if !s.decode(w, r, &in) {
			return
		}
		agent, err := s.cfg.Store.CreateAgent(r.Context(), in)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.recordMutation(r.Context(), "agent.create")
		s.cfg.Hub.Publish(hub.EventAgentCreated, agent)
		writeJSON(w, http.StatusCreated, agent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseIDPath(r.URL.Path, "/api/agents/")
	if !ok || action != "" {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var patch store.AgentPatch
	if !s.decode(w, r, &patch) {
		return
	}
	agent, err := s.cfg.Store.UpdateAgent(r.Context(), id, patch)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.recordMutation(r.Context(), "agent.update")
	s.cfg.Hub.Publish(hub.EventAgentUpdated, agent)
	writeJSON(w, http.StatusOK, agent)
}

// --- messages ---

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		messages, err := s.cfg.Store.ListMessages(r.Context(), r.URL.Query().Get("agent_id"), limit)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messages)

	case http.MethodPost:
		var in store.NewMessage
		if !s.decode(w, r, &in) {
			return
		}
		msg, err := s.cfg.Store.CreateMessage(r.Context(), in)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.recordMutation(r.Context(), "message.create")
		s.cfg.Hub.Publish(hub.EventMessageCreated, msg)
		writeJSON(w, http.StatusCreated, msg)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- board projections ---

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	columns, err := s.cfg.Store.Board(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, columns)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.cfg.Store.BoardStats(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- config ---

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.LoadAgents == nil {
		http.Error(w, "config reload not available", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Force bool `json:"force"`
	}
	// An empty body means a plain non-forced reload.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	entries, source := s.cfg.LoadAgents()
	result, err := s.cfg.Store.ReloadAgents(r.Context(), entries, body.Force)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.recordMutation(r.Context(), "agents.reload")
	s.cfg.Hub.Publish(hub.EventAgentsReloaded, result)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"source":  source,
		"created": result.Created,
		"skipped": result.Skipped,
		"agents":  result.Agents,
	})
}

func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	count, err := s.cfg.Store.CountAgents(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	source := ""
	if s.cfg.LoadAgents != nil {
		_, source = s.cfg.LoadAgents()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":      source,
		"agent_count": count,
		"engine":      s.cfg.Store.Adapter().Kind(),
	})
}

// --- helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeStoreError maps store errors onto HTTP statuses. Storage
// failures keep the engine's message text in the response body for
// diagnosability; this API has no auth boundary to hide it behind.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	default:
		s.cfg.Logger.Error("store error", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func (s *Server) recordMutation(ctx context.Context, kind string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.MutationsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parseIDPath splits "/api/tasks/42/progress" into (42, "progress").
func parseIDPath(path, prefix string) (int64, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, action, true
}
