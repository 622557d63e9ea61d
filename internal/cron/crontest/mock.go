// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/vadash/openvault-sub001/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	calls atomic.Int32
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and counts the call.
func (m *MockJob) Run(ctx context.Context) error {
	m.calls.Add(1)
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// Calls returns the number of times Run was called.
func (m *MockJob) Calls() int {
	return int(m.calls.Load())
}
