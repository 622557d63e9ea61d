// Package cron runs periodic maintenance jobs, such as the embedding
// backfill, on 5-field cron schedules.
package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned by Trigger for an unregistered name.
	ErrUnknownJob = errors.New("cron: unknown job")

	// ErrJobRunning is returned by Trigger while the job is already running.
	ErrJobRunning = errors.New("cron: job already running")
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job.
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a valid 5-field expression or a
// descriptor such as "@hourly".
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}
