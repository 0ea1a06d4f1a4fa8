// Package config loads the server settings and the agents roster file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Settings holds the server configuration, read from the environment.
type Settings struct {
	// DatabaseURL selects the storage engine: "sqlite:<path>" for the
	// embedded engine, anything else is treated as a Postgres URL.
	DatabaseURL string

	// BindAddr is the HTTP listen address.
	BindAddr string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// LogFile receives a copy of the log stream when non-empty.
	LogFile string

	// AgentsFile overrides the roster search paths when non-empty.
	AgentsFile string

	// RetentionDays is how long agent messages are kept; 0 disables
	// pruning entirely.
	RetentionDays int

	// RetentionSchedule is the cron expression for the pruning job.
	RetentionSchedule string

	// OTLPEndpoint enables the OTLP trace exporter when non-empty.
	OTLPEndpoint string
}

// FromEnv builds Settings from environment variables, falling back to
// development defaults.
func FromEnv() Settings {
	s := Settings{
		DatabaseURL:       envOr("DATABASE_URL", "sqlite:data/clawcontrol.db"),
		BindAddr:          ":" + envOr("PORT", "3001"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
		AgentsFile:        os.Getenv("AGENTS_FILE"),
		RetentionDays:     30,
		RetentionSchedule: envOr("RETENTION_SCHEDULE", "0 3 * * *"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			s.RetentionDays = days
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// AgentEntry is one agent in the roster file.
type AgentEntry struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Role        string `yaml:"role" json:"role"`
	Avatar      string `yaml:"avatar" json:"avatar"`
	Status      string `yaml:"status" json:"status"`
}

// AgentsFile is the parsed roster document.
type AgentsFile struct {
	Agents []AgentEntry `yaml:"agents"`
}

// agentsSchema constrains the roster document. Validation happens on
// the YAML re-encoded as generic values, so aliases and anchors are
// fine.
const agentsSchema = `{
	"type": "object",
	"required": ["agents"],
	"properties": {
		"agents": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name":        {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"role":        {"type": "string"},
					"avatar":      {"type": "string"},
					"status":      {"type": "string"}
				}
			}
		}
	}
}`

// DefaultAgents is the roster used when no agents file is found.
func DefaultAgents() []AgentEntry {
	return []AgentEntry{
		{Name: "Agent Alpha", Description: "Coordinates work across the team", Role: "Coordinator", Avatar: "🤖", Status: "idle"},
		{Name: "Agent Beta", Description: "Implements features and fixes", Role: "Developer", Avatar: "💻", Status: "idle"},
		{Name: "Agent Gamma", Description: "Keeps the infrastructure healthy", Role: "DevOps", Avatar: "🔧", Status: "idle"},
		{Name: "Agent Delta", Description: "Digs into open questions", Role: "Researcher", Avatar: "📖", Status: "idle"},
	}
}

// AgentsSearchPaths returns the locations probed for the roster file,
// in priority order.
func AgentsSearchPaths() []string {
	paths := []string{
		"agents.yaml",
		filepath.Join("config", "agents.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".claw-control", "agents.yaml"))
	}
	return paths
}

// LoadAgents reads the roster from the given path, or from the search
// paths when path is empty. A missing or malformed file is not fatal:
// the built-in defaults are returned so the dashboard always has a
// roster to seed from. The second return value is the path actually
// used, empty when falling back to defaults.
func LoadAgents(path string, logger *slog.Logger) ([]AgentEntry, string) {
	candidates := []string{path}
	if path == "" {
		candidates = AgentsSearchPaths()
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		entries, err := parseAgents(data)
		if err != nil {
			logger.Warn("agents file rejected, using defaults", "path", candidate, "error", err)
			return DefaultAgents(), ""
		}
		logger.Info("loaded agents config", "path", candidate, "agents", len(entries))
		return entries, candidate
	}

	logger.Info("no agents file found, using defaults")
	return DefaultAgents(), ""
}

func parseAgents(data []byte) ([]AgentEntry, error) {
	var doc AgentsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validateAgents(data); err != nil {
		return nil, err
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("agents list is empty")
	}
	for i := range doc.Agents {
		if doc.Agents[i].Status == "" {
			doc.Agents[i].Status = "idle"
		}
	}
	return doc.Agents, nil
}

func validateAgents(data []byte) error {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decode roster: %w", err)
	}

	schema, err := compiledAgentsSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(toJSONValue(generic)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func compiledAgentsSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(agentsSchema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("agents.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("agents.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// toJSONValue converts yaml generic output (which can carry
// map[any]any) into the plain map shape the validator accepts.
func toJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJSONValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = toJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJSONValue(val)
		}
		return out
	default:
		return v
	}
}
