// Package retention prunes old agent messages on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/buddybot89/claw-control/internal/store"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the dependencies for the pruner.
type Config struct {
	Store    *store.Store
	Logger   *slog.Logger
	Schedule string // cron expression; defaults to 03:00 daily
	MaxAge   time.Duration
}

// Pruner deletes agent messages older than MaxAge whenever the cron
// schedule fires.
type Pruner struct {
	store    *store.Store
	logger   *slog.Logger
	schedule cronlib.Schedule
	maxAge   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPruner creates a Pruner. It returns an error when the cron
// expression does not parse.
func NewPruner(cfg Config) (*Pruner, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = "0 3 * * *"
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", expr, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:    cfg.Store,
		logger:   logger,
		schedule: schedule,
		maxAge:   cfg.MaxAge,
	}, nil
}

// Start begins the prune loop. It runs in a background goroutine and
// respects the provided context for shutdown.
func (p *Pruner) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("retention pruner started", "max_age", p.maxAge, "next_run", p.schedule.Next(time.Now()))
}

// Stop cancels the loop and waits for it to exit.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("retention pruner stopped")
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		next := p.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.maxAge)
	removed, err := p.store.PruneMessages(ctx, cutoff)
	if err != nil {
		p.logger.Error("retention: prune failed", "error", err)
		return
	}
	p.logger.Info("retention: pruned messages", "removed", removed, "cutoff", cutoff.UTC().Format(time.RFC3339))
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time. Exposed for config validation at startup.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
