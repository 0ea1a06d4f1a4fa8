package gateway

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/buddybot89/claw-control/internal/hub"
	"github.com/buddybot89/claw-control/internal/store"
)

const (
	demoInitialDelay   = 2 * time.Second
	demoMinInterval    = 3 * time.Second
	demoIntervalSpread = 5 * time.Second
)

// runDemo drives the board for one demo-mode client: after a short
// initial delay it advances one random non-completed task at random
// intervals. Updates go through the normal mutation path, so every
// connected client sees them, not just the one that asked for demo
// mode. The loop exits with the subscriber's request context.
func (s *Server) runDemo(ctx context.Context, sub *hub.Subscriber) {
	if err := s.cfg.Hub.Send(sub, hub.EventDemoStarted, map[string]any{
		"message": "Demo mode active: tasks advance automatically",
	}); err != nil {
		s.cfg.Logger.Error("demo: send start event", "error", err)
	}
	s.cfg.Logger.Info("demo mode started", "client_id", sub.ID())

	timer := time.NewTimer(demoInitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Debug("demo mode stopped", "client_id", sub.ID())
			return
		case <-timer.C:
			s.demoTick(ctx)
			timer.Reset(demoMinInterval + time.Duration(rand.Int63n(int64(demoIntervalSpread))))
		}
	}
}

// demoTick advances one random active task. A board with no movable
// tasks makes the tick a no-op.
func (s *Server) demoTick(ctx context.Context) {
	task, err := s.cfg.Store.RandomActiveTask(ctx)
	if err != nil {
		s.cfg.Logger.Error("demo: pick task", "error", err)
		return
	}
	if task == nil {
		return
	}

	updated, prev, err := s.cfg.Store.AdvanceTask(ctx, task.ID)
	if err != nil {
		// A concurrent completion between pick and advance is fine.
		if !errors.Is(err, store.ErrCompleted) {
			s.cfg.Logger.Error("demo: advance task", "task_id", task.ID, "error", err)
		}
		return
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.DemoAdvances.Add(ctx, 1)
	}
	s.cfg.Logger.Info("demo: advanced task",
		"task_id", updated.ID, "from", prev, "to", updated.Status)
	s.cfg.Hub.Publish(hub.EventTaskUpdated, updated)
}
