package store

import "testing"

func TestNext_FullProgression(t *testing.T) {
	tests := []struct {
		from   Status
		want   Status
		wantOK bool
	}{
		{StatusBacklog, StatusTodo, true},
		{StatusTodo, StatusInProgress, true},
		{StatusInProgress, StatusReview, true},
		{StatusReview, StatusCompleted, true},
		{StatusCompleted, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got, ok := Next(tt.from)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Next(%s) = (%q, %v), want (%q, %v)", tt.from, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNext_UnknownStatusRejected(t *testing.T) {
	for _, s := range []Status{"", "done", "BACKLOG", "in-progress"} {
		if next, ok := Next(s); ok {
			t.Fatalf("Next(%q) = (%q, true), want rejection", s, next)
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range Statuses() {
		if !ValidStatus(s) {
			t.Fatalf("ValidStatus(%s) = false", s)
		}
	}
	if ValidStatus("archived") {
		t.Fatal("ValidStatus(archived) = true, want false")
	}
}
