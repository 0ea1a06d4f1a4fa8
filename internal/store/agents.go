package store

import (
	"context"
	"fmt"
	"strings"
)

// NewAgent is the create payload. Role and Status take their documented
// defaults when omitted.
type NewAgent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

// AgentPatch is a partial update; nil fields keep their prior value.
type AgentPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Role        *string `json:"role"`
	Status      *string `json:"status"`
}

// ListAgents returns all agents in creation order.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	res, err := s.db.Query(ctx, "SELECT * FROM agents ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	agents := make([]Agent, 0, len(res.Rows))
	for _, row := range res.Rows {
		agents = append(agents, agentFromRow(row))
	}
	return agents, nil
}

// CreateAgent inserts an agent and returns the stored row.
func (s *Store) CreateAgent(ctx context.Context, in NewAgent) (Agent, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Agent{}, &ValidationError{Field: "name"}
	}
	role := in.Role
	if role == "" {
		role = "Agent"
	}
	status := in.Status
	if status == "" {
		status = "idle"
	}

	res, err := s.db.Query(ctx, `
		INSERT INTO agents (name, description, role, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *`,
		in.Name, nullIfEmpty(in.Description), role, status)
	if err != nil {
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	if len(res.Rows) == 0 {
		return Agent{}, fmt.Errorf("create agent: no row returned")
	}
	return agentFromRow(res.Rows[0]), nil
}

// UpdateAgent merges the patch into the stored row.
func (s *Store) UpdateAgent(ctx context.Context, id int64, patch AgentPatch) (Agent, error) {
	res, err := s.db.Query(ctx, `
		UPDATE agents
		SET name = COALESCE($1, name),
			description = COALESCE($2, description),
			role = COALESCE($3, role),
			status = COALESCE($4, status)
		WHERE id = $5
		RETURNING *`,
		patch.Name, patch.Description, patch.Role, patch.Status, id)
	if err != nil {
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	if len(res.Rows) == 0 {
		return Agent{}, ErrNotFound
	}
	return agentFromRow(res.Rows[0]), nil
}

// CountAgents returns the number of agent rows.
func (s *Store) CountAgents(ctx context.Context) (int64, error) {
	res, err := s.db.Query(ctx, "SELECT COUNT(*) AS count FROM agents")
	if err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return rowInt64(res.Rows[0]["count"]), nil
}

// CountAgentsByStatus counts agents with the given free-text status.
func (s *Store) CountAgentsByStatus(ctx context.Context, status string) (int64, error) {
	res, err := s.db.Query(ctx, "SELECT COUNT(*) AS count FROM agents WHERE status = $1", status)
	if err != nil {
		return 0, fmt.Errorf("count agents by status: %w", err)
	}
	return rowInt64(res.Rows[0]["count"]), nil
}
