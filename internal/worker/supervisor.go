package worker

// supervisor.go watches the queue for jobs that stopped moving.
//
// A job stays Assigned or InProgress when its worker died mid-job. The
// supervisor only reports such jobs and keeps the queue gauges current;
// requeueing is left to operators.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/rteval-parser/internal/metrics"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

// Inspector is the read side of the queue the supervisor needs.
type Inspector interface {
	Counts(ctx context.Context) (map[queue.Status]int64, error)
	Stuck(ctx context.Context, olderThan time.Duration) ([]queue.Entry, error)
}

// SupervisorConfig holds the supervisor's timing.
type SupervisorConfig struct {
	StuckAfter time.Duration // how long a job may sit assigned or in progress
	Interval   time.Duration // how often to check
}

// RunSupervisor checks the queue immediately, then every Interval, until
// ctx is cancelled.
func RunSupervisor(ctx context.Context, q Inspector, cfg SupervisorConfig) {
	slog.Info("queue supervisor started",
		"stuck_after", cfg.StuckAfter,
		"interval", cfg.Interval,
	)

	checkQueue(ctx, q, cfg.StuckAfter)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("queue supervisor stopped")
			return
		case <-ticker.C:
			checkQueue(ctx, q, cfg.StuckAfter)
		}
	}
}

// checkQueue performs one pass and returns the stuck jobs found.
func checkQueue(ctx context.Context, q Inspector, stuckAfter time.Duration) []queue.Entry {
	counts, err := q.Counts(ctx)
	if err != nil {
		slog.Error("count queue jobs failed", "error", err)
	} else {
		byName := make(map[string]int64, len(counts))
		for status, n := range counts {
			byName[status.String()] = n
		}
		metrics.SetQueueCounts(byName)
	}

	stuck, err := q.Stuck(ctx, stuckAfter)
	if err != nil {
		slog.Error("list stuck jobs failed", "error", err)
		return nil
	}
	metrics.SetStuckJobs(len(stuck))
	for _, e := range stuck {
		slog.Warn("job appears stuck",
			"submid", e.SubmID,
			"status", e.Status.String(),
			"file", e.Filename,
			"since", e.Since(),
		)
	}
	return stuck
}
