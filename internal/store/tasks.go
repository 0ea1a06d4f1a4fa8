package store

import (
	"context"
	"fmt"
	"strings"
)

// TaskFilter holds the conjunctive equality predicates for ListTasks.
// Empty fields are not filtered on.
type TaskFilter struct {
	Status  string
	AgentID string
}

// NewTask is the create payload. Status defaults to backlog and Tags to
// an empty list.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Tags        []string `json:"tags"`
	AgentID     *int64   `json:"agent_id"`
}

// TaskPatch is a partial update. Nil fields keep their prior value.
type TaskPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *Status   `json:"status"`
	Tags        *[]string `json:"tags"`
	AgentID     *int64    `json:"agent_id"`
}

// ListTasks returns tasks newest-first, optionally filtered by status
// and owning agent.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	query := "SELECT * FROM tasks"
	var args []any
	var conds []string

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		conds = append(conds, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	res, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make([]Task, 0, len(res.Rows))
	for _, row := range res.Rows {
		tasks = append(tasks, taskFromRow(row))
	}
	return tasks, nil
}

// GetTask fetches one task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (Task, error) {
	res, err := s.db.Query(ctx, "SELECT * FROM tasks WHERE id = $1", id)
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	if len(res.Rows) == 0 {
		return Task{}, ErrNotFound
	}
	return taskFromRow(res.Rows[0]), nil
}

// CreateTask inserts a task and returns the stored row.
func (s *Store) CreateTask(ctx context.Context, in NewTask) (Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Task{}, &ValidationError{Field: "title"}
	}
	status := in.Status
	if status == "" {
		status = StatusBacklog
	}
	if !ValidStatus(status) {
		return Task{}, fmt.Errorf("invalid status %q", status)
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	res, err := s.db.Query(ctx, `
		INSERT INTO tasks (title, description, status, tags, agent_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		in.Title, nullIfEmpty(in.Description), string(status), tags, in.AgentID)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	if len(res.Rows) == 0 {
		return Task{}, fmt.Errorf("create task: no row returned")
	}
	return taskFromRow(res.Rows[0]), nil
}

// UpdateTask merges the patch into the stored row. Omitted fields keep
// their prior value (COALESCE semantics).
func (s *Store) UpdateTask(ctx context.Context, id int64, patch TaskPatch) (Task, error) {
	if patch.Status != nil && !ValidStatus(*patch.Status) {
		return Task{}, fmt.Errorf("invalid status %q", *patch.Status)
	}
	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}

	res, err := s.db.Query(ctx, `
		UPDATE tasks
		SET title = COALESCE($1, title),
			description = COALESCE($2, description),
			status = COALESCE($3, status),
			tags = COALESCE($4, tags),
			agent_id = COALESCE($5, agent_id),
			updated_at = NOW()
		WHERE id = $6
		RETURNING *`,
		patch.Title, patch.Description, status, patch.Tags, patch.AgentID, id)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	if len(res.Rows) == 0 {
		return Task{}, ErrNotFound
	}
	return taskFromRow(res.Rows[0]), nil
}

// DeleteTask removes a task and returns the deleted row.
func (s *Store) DeleteTask(ctx context.Context, id int64) (Task, error) {
	res, err := s.db.Query(ctx, "DELETE FROM tasks WHERE id = $1 RETURNING *", id)
	if err != nil {
		return Task{}, fmt.Errorf("delete task: %w", err)
	}
	if len(res.Rows) == 0 {
		return Task{}, ErrNotFound
	}
	return taskFromRow(res.Rows[0]), nil
}

// AdvanceTask moves a task one step through the workflow. The previous
// status is returned alongside the updated row. A terminal task yields
// ErrCompleted and the row is left untouched.
func (s *Store) AdvanceTask(ctx context.Context, id int64) (Task, Status, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return Task{}, "", err
	}
	next, ok := Next(current.Status)
	if !ok {
		if current.Status == StatusCompleted {
			return current, current.Status, ErrCompleted
		}
		return Task{}, "", fmt.Errorf("task %d has unknown status %q", id, current.Status)
	}

	updated, err := s.setStatus(ctx, id, next)
	if err != nil {
		return Task{}, "", err
	}
	return updated, current.Status, nil
}

// CompleteTask force-completes a task regardless of its current status.
func (s *Store) CompleteTask(ctx context.Context, id int64) (Task, error) {
	return s.setStatus(ctx, id, StatusCompleted)
}

func (s *Store) setStatus(ctx context.Context, id int64, status Status) (Task, error) {
	res, err := s.db.Query(ctx, `
		UPDATE tasks
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING *`,
		string(status), id)
	if err != nil {
		return Task{}, fmt.Errorf("set task status: %w", err)
	}
	if len(res.Rows) == 0 {
		return Task{}, ErrNotFound
	}
	return taskFromRow(res.Rows[0]), nil
}

// RandomActiveTask picks one non-completed task uniformly at random.
// It returns nil when every task is completed or the board is empty.
func (s *Store) RandomActiveTask(ctx context.Context) (*Task, error) {
	res, err := s.db.Query(ctx,
		"SELECT * FROM tasks WHERE status != $1 ORDER BY RANDOM() LIMIT 1",
		string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("random active task: %w", err)
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	task := taskFromRow(res.Rows[0])
	return &task, nil
}

// CountTasks counts tasks currently in any of the given statuses.
func (s *Store) CountTasks(ctx context.Context, statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		res, err := s.db.Query(ctx, "SELECT COUNT(*) AS count FROM tasks")
		if err != nil {
			return 0, fmt.Errorf("count tasks: %w", err)
		}
		return rowInt64(res.Rows[0]["count"]), nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(st)
	}
	res, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS count FROM tasks WHERE status IN (%s)", strings.Join(placeholders, ", ")),
		args...)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return rowInt64(res.Rows[0]["count"]), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
