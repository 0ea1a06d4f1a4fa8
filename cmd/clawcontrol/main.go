package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/buddybot89/claw-control/internal/config"
	"github.com/buddybot89/claw-control/internal/db"
	"github.com/buddybot89/claw-control/internal/gateway"
	"github.com/buddybot89/claw-control/internal/hub"
	otelPkg "github.com/buddybot89/claw-control/internal/otel"
	"github.com/buddybot89/claw-control/internal/retention"
	"github.com/buddybot89/claw-control/internal/store"
	"github.com/buddybot89/claw-control/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	loadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := config.FromEnv()

	logger, closer, err := telemetry.NewLogger(settings.LogLevel, settings.LogFile)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "version", Version)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:  settings.OTLPEndpoint != "",
		Exporter: "otlp-http",
		Endpoint: settings.OTLPEndpoint,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())
	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS", err)
	}

	adapter, err := db.Open(ctx, settings.DatabaseURL, logger)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer adapter.Close()
	logger.Info("startup phase", "phase", "storage_opened", "engine", adapter.Kind())

	st := store.New(adapter, logger)
	if err := st.Migrate(ctx); err != nil {
		fatalStartup(logger, "E_SCHEMA_MIGRATE", err)
	}
	logger.Info("startup phase", "phase", "schema_migrated")

	// Seed the roster when the agents table is empty. Roster problems
	// are never fatal: the server runs with whatever is in the store.
	entries, source := config.LoadAgents(settings.AgentsFile, logger)
	if created, err := st.SeedAgents(ctx, agentEntriesToNew(entries)); err != nil {
		logger.Warn("agent seed incomplete", "error", err)
	} else if created > 0 {
		logger.Info("startup phase", "phase", "agents_seeded", "created", created, "source", source)
	}

	broadcast := hub.New(logger)

	gw := gateway.New(gateway.Config{
		Store:   st,
		Hub:     broadcast,
		Logger:  logger,
		Metrics: metrics,
		LoadAgents: func() ([]store.NewAgent, string) {
			loaded, src := config.LoadAgents(settings.AgentsFile, logger)
			return agentEntriesToNew(loaded), src
		},
		AllowOrigins: splitCSV(os.Getenv("ALLOW_ORIGINS")),
	})

	// Roster file changes trigger a non-forced reload so edits show up
	// on connected dashboards without a restart.
	watcher := config.NewWatcher(settings.AgentsFile, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("agents watcher unavailable", "error", err)
	} else {
		go func() {
			for ev := range watcher.Events() {
				loaded, _ := config.LoadAgents(settings.AgentsFile, logger)
				result, err := st.ReloadAgents(ctx, agentEntriesToNew(loaded), false)
				if err != nil {
					logger.Error("agents hot-reload failed", "path", ev.Path, "error", err)
					continue
				}
				broadcast.Publish(hub.EventAgentsReloaded, result)
				logger.Info("agents hot-reloaded", "path", ev.Path, "created", result.Created, "skipped", result.Skipped)
			}
		}()
	}

	if settings.RetentionDays > 0 {
		pruner, err := retention.NewPruner(retention.Config{
			Store:    st,
			Logger:   logger,
			Schedule: settings.RetentionSchedule,
			MaxAge:   time.Duration(settings.RetentionDays) * 24 * time.Hour,
		})
		if err != nil {
			fatalStartup(logger, "E_RETENTION_INIT", err)
		}
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	server := &http.Server{
		Addr:              settings.BindAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	ln, err := net.Listen("tcp", settings.BindAddr)
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			fatalStartup(logger, "E_LISTENER_BIND",
				fmt.Errorf("%w\n\n  another process is using %s; stop it or set PORT", err, settings.BindAddr))
		}
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	go func() {
		logger.Info("gateway listening", "addr", settings.BindAddr, "events", "/api/events", "ws", "/api/ws")
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("gateway server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func agentEntriesToNew(entries []config.AgentEntry) []store.NewAgent {
	out := make([]store.NewAgent, 0, len(entries))
	for _, e := range entries {
		out = append(out, store.NewAgent{
			Name:        e.Name,
			Description: e.Description,
			Role:        e.Role,
			Status:      e.Status,
		})
	}
	return out
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"server","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
