package store

import (
	"context"
	"fmt"
)

// BoardCard is the trimmed task view used by the board projection.
type BoardCard struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`
	AgentID     *int64 `json:"agent_id"`
}

// BoardColumn groups cards under one workflow status.
type BoardColumn struct {
	Title  string      `json:"title"`
	Status Status      `json:"status"`
	Cards  []BoardCard `json:"cards"`
}

var columnTitles = map[Status]string{
	StatusBacklog:    "Backlog",
	StatusTodo:       "To Do",
	StatusInProgress: "In Progress",
	StatusReview:     "In Review",
	StatusCompleted:  "Completed",
}

// Board projects all tasks into the five fixed columns in workflow
// order. Tasks carrying an out-of-enum status are dropped from the
// projection rather than inventing a column for them.
func (s *Store) Board(ctx context.Context) ([]BoardColumn, error) {
	res, err := s.db.Query(ctx, "SELECT * FROM tasks ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}

	columns := make([]BoardColumn, 0, len(columnTitles))
	index := make(map[Status]int, len(columnTitles))
	for i, st := range Statuses() {
		columns = append(columns, BoardColumn{Title: columnTitles[st], Status: st, Cards: []BoardCard{}})
		index[st] = i
	}

	for _, row := range res.Rows {
		task := taskFromRow(row)
		i, ok := index[task.Status]
		if !ok {
			continue
		}
		columns[i].Cards = append(columns[i].Cards, BoardCard{
			ID:          task.ID,
			Text:        task.Title,
			Description: task.Description,
			Status:      task.Status,
			AgentID:     task.AgentID,
		})
	}
	return columns, nil
}

// Stats is the dashboard summary.
type Stats struct {
	ActiveAgents int64 `json:"activeAgents"`
	TasksInQueue int64 `json:"tasksInQueue"`
}

// BoardStats counts working agents and queued (backlog or todo) tasks.
func (s *Store) BoardStats(ctx context.Context) (Stats, error) {
	agents, err := s.CountAgentsByStatus(ctx, "working")
	if err != nil {
		return Stats{}, err
	}
	queued, err := s.CountTasks(ctx, StatusBacklog, StatusTodo)
	if err != nil {
		return Stats{}, err
	}
	return Stats{ActiveAgents: agents, TasksInQueue: queued}, nil
}
