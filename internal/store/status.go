package store

// Status is the task workflow state.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
)

// progression maps each status to its successor. StatusCompleted is
// terminal and has no entry value.
var progression = map[Status]Status{
	StatusBacklog:    StatusTodo,
	StatusTodo:       StatusInProgress,
	StatusInProgress: StatusReview,
	StatusReview:     StatusCompleted,
	StatusCompleted:  "",
}

// Next returns the successor of s. ok is false when s is terminal or not
// one of the five defined states; an unknown status is a data-integrity
// anomaly, never a valid transition input.
func Next(s Status) (Status, bool) {
	next, known := progression[s]
	if !known || next == "" {
		return "", false
	}
	return next, true
}

// ValidStatus reports whether s is one of the five defined states.
func ValidStatus(s Status) bool {
	_, known := progression[s]
	return known
}

// Statuses returns the five states in workflow order.
func Statuses() []Status {
	return []Status{StatusBacklog, StatusTodo, StatusInProgress, StatusReview, StatusCompleted}
}
