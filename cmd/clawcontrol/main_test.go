package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/buddybot89/claw-control/internal/config"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"http://a", []string{"http://a"}},
		{"http://a, http://b", []string{"http://a", "http://b"}},
		{"http://a,,http://b,", []string{"http://a", "http://b"}},
	}
	for _, tt := range tests {
		if got := splitCSV(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCSV(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAgentEntriesToNew(t *testing.T) {
	entries := []config.AgentEntry{
		{Name: "Agent Alpha", Description: "coordinates", Role: "Coordinator", Status: "idle"},
	}
	got := agentEntriesToNew(entries)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Name != "Agent Alpha" || got[0].Role != "Coordinator" || got[0].Status != "idle" {
		t.Fatalf("converted = %+v", got[0])
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nTESTENV_ONE=hello\n\nTESTENV_TWO = world \nBROKENLINE\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("TESTENV_ONE", "")
	os.Unsetenv("TESTENV_ONE")
	t.Setenv("TESTENV_TWO", "preset")

	loadDotEnv(path)

	if got := os.Getenv("TESTENV_ONE"); got != "hello" {
		t.Fatalf("TESTENV_ONE = %q, want hello", got)
	}
	// Existing values are not overwritten.
	if got := os.Getenv("TESTENV_TWO"); got != "preset" {
		t.Fatalf("TESTENV_TWO = %q, want preset", got)
	}
}
