package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultMessageLimit = 50

// NewMessage is the create payload for an agent message.
type NewMessage struct {
	AgentID *int64 `json:"agent_id"`
	Message string `json:"message"`
}

// ListMessages returns messages newest-first, joined with the agent name
// for display. agentID filters to one agent when non-empty; limit caps
// the page (single numeric limit, no offset).
func (s *Store) ListMessages(ctx context.Context, agentID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	query := `SELECT m.*, a.name AS agent_name
		FROM agent_messages m
		LEFT JOIN agents a ON m.agent_id = a.id`
	var args []any
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" WHERE m.agent_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.id DESC LIMIT $%d", len(args))

	res, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages := make([]Message, 0, len(res.Rows))
	for _, row := range res.Rows {
		messages = append(messages, messageFromRow(row))
	}
	return messages, nil
}

// CreateMessage inserts a message and returns the stored row.
func (s *Store) CreateMessage(ctx context.Context, in NewMessage) (Message, error) {
	if strings.TrimSpace(in.Message) == "" {
		return Message{}, &ValidationError{Field: "message"}
	}
	res, err := s.db.Query(ctx, `
		INSERT INTO agent_messages (agent_id, message)
		VALUES ($1, $2)
		RETURNING *`,
		in.AgentID, in.Message)
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	if len(res.Rows) == 0 {
		return Message{}, fmt.Errorf("create message: no row returned")
	}
	return messageFromRow(res.Rows[0]), nil
}

// PruneMessages deletes messages created before the cutoff and reports
// how many were removed. The cutoff is rendered in the storage format
// both engines compare correctly, so no dialect-specific date arithmetic
// is needed.
func (s *Store) PruneMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Query(ctx,
		"DELETE FROM agent_messages WHERE created_at < $1",
		cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return res.Affected, nil
}
