// Package main provides the aqwatch ingestion and evaluation worker.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/aqwatch/aqwatch/pkg/alerts"
	"github.com/aqwatch/aqwatch/pkg/ingest"
	"github.com/robfig/cron/v3"
)

// Runner executes sync passes: pull upstream data, optionally top up demo
// rules, then evaluate the trailing measurement window.
type Runner struct {
	syncer     *ingest.Syncer
	evaluation *alerts.EvaluationService
	seeder     *alerts.DemoSeeder
	logger     *slog.Logger
	window     time.Duration
	demoRules  int
}

// RunOnce executes a single sync and evaluation pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	stats, err := r.syncer.Sync(ctx)
	if err != nil {
		return err
	}

	if r.demoRules > 0 {
		_, err = r.seeder.EnsureDemoRules(ctx, r.demoRules)
		if err != nil {
			return err
		}
	}

	results, err := r.evaluation.EvaluateRecent(ctx, r.window)
	if err != nil {
		return err
	}

	var created, refreshed int

	for _, result := range results {
		created += result.Created
		refreshed += result.Refreshed
	}

	r.logger.InfoContext(ctx, "sync pass complete",
		"measurements_synced", stats.Measurements,
		"measurements_alerting", len(results),
		"alerts_created", created,
		"alerts_refreshed", refreshed,
	)

	return nil
}

// RunScheduled runs passes on the cron schedule until the context is
// cancelled. A failing pass is logged and the schedule keeps going.
func (r *Runner) RunScheduled(ctx context.Context, schedule string) error {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(schedule, func() {
		err := r.RunOnce(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "sync pass failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "sync scheduled", "schedule", schedule)
	scheduler.Start()

	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	return nil
}
