package schedule

import (
	"errors"
	"time"

	"github.com/HyphaGroup/kepoki/internal/runtime"
)

var (
	ErrInvalidCron      = errors.New("invalid cron expression")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrEmptyPrompt      = errors.New("prompt is required")
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// ExecutionStatus represents the outcome of a schedule firing
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// Schedule sends Prompt to Agent every time CronExpr fires
type Schedule struct {
	ID         string              `json:"id"`
	Name       string              `json:"name,omitempty"`
	CronExpr   string              `json:"cron_expr"`
	Prompt     string              `json:"prompt"`
	Agent      runtime.AgentHandle `json:"agent"`
	Enabled    bool                `json:"enabled"`
	CreatedAt  time.Time           `json:"created_at"`
	LastRunAt  *time.Time          `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time          `json:"next_run_at,omitempty"`
	LastStatus ExecutionStatus     `json:"last_status,omitempty"`
	LastError  string              `json:"last_error,omitempty"`
	Runs       int                 `json:"runs"`
}

// clone copies the schedule including its time pointers
func (s *Schedule) clone() Schedule {
	out := *s
	if s.LastRunAt != nil {
		t := *s.LastRunAt
		out.LastRunAt = &t
	}
	if s.NextRunAt != nil {
		t := *s.NextRunAt
		out.NextRunAt = &t
	}
	return out
}
