// Package schedule drives recurring syncs.
package schedule

import (
	"context"
	"log"
	"time"

	"tasktally/internal/config"
	"tasktally/internal/tally"
)

// Runner syncs every configured project at a fixed interval.
type Runner struct {
	Syncer   tally.Syncer
	Projects []config.Project
	Interval time.Duration
	Logger   *log.Logger
}

// Run performs one sync immediately, then one per interval tick until the
// context is canceled. Project syncs within a cycle are sequential.
func (r Runner) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	r.cycle(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r Runner) cycle(ctx context.Context) {
	start := time.Now()
	results := r.Syncer.SyncAll(ctx, r.Projects)
	r.logger().Printf("sync cycle done: %d/%d projects in %s", len(results), len(r.Projects), time.Since(start).Round(time.Millisecond))
}

func (r Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}
