package store

import (
	"context"
	"fmt"
)

// ReloadResult summarizes a config-driven agent reload.
type ReloadResult struct {
	Created int     `json:"created"`
	Skipped int     `json:"skipped"`
	Agents  []Agent `json:"agents"`
}

// SeedAgents inserts the given agents only when the agents table is
// empty. It is the one path that creates rows as a side effect of
// startup; any later reconciliation goes through ReloadAgents.
func (s *Store) SeedAgents(ctx context.Context, entries []NewAgent) (int, error) {
	count, err := s.CountAgents(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("agents already present, skipping seed", "count", count)
		return 0, nil
	}

	created := 0
	for _, entry := range entries {
		agent, err := s.CreateAgent(ctx, entry)
		if err != nil {
			return created, fmt.Errorf("seed agent %q: %w", entry.Name, err)
		}
		s.logger.Info("seeded agent", "name", agent.Name, "role", agent.Role)
		created++
	}
	return created, nil
}

// ReloadAgents reconciles the agents table against the config entries.
// Name is the natural key: the default mode upserts by name, updating
// description and role of existing rows; force mode wipes the table and
// recreates it from the entries.
func (s *Store) ReloadAgents(ctx context.Context, entries []NewAgent, force bool) (ReloadResult, error) {
	if force {
		if _, err := s.db.Query(ctx, "DELETE FROM agents"); err != nil {
			return ReloadResult{}, fmt.Errorf("clear agents: %w", err)
		}
		s.logger.Info("cleared existing agents (force reload)")
	}

	existing, err := s.ListAgents(ctx)
	if err != nil {
		return ReloadResult{}, err
	}
	existingNames := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		existingNames[a.Name] = struct{}{}
	}

	var result ReloadResult
	for _, entry := range entries {
		if _, ok := existingNames[entry.Name]; ok && !force {
			result.Skipped++
			continue
		}
		role := entry.Role
		if role == "" {
			role = "Agent"
		}
		status := entry.Status
		if status == "" {
			status = "idle"
		}
		// ON CONFLICT upsert parses on both engines since name is
		// declared UNIQUE in the schema.
		if _, err := s.db.Query(ctx, `
			INSERT INTO agents (name, description, role, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE SET
				description = EXCLUDED.description,
				role = EXCLUDED.role`,
			entry.Name, nullIfEmpty(entry.Description), role, status); err != nil {
			return result, fmt.Errorf("upsert agent %q: %w", entry.Name, err)
		}
		result.Created++
	}

	result.Agents, err = s.ListAgents(ctx)
	if err != nil {
		return result, err
	}
	return result, nil
}
