// Package schedule fires prompts at running agents on cron schedules.
//
// scheduler.go - Schedule runner
//
// This file contains:
// - Sender interface implemented by *runtime.Runtime
// - Scheduler tracking schedules and their next run times
// - the ticker loop that fires due schedules
//
// A firing sends the schedule's prompt as a UserMessage command. Schedules
// whose agent no longer exists are disabled.

package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/metrics"
	"github.com/HyphaGroup/kepoki/internal/runtime"
)

// DefaultInterval is how often the scheduler checks for due schedules
const DefaultInterval = time.Second

// Sender delivers commands to agents
type Sender interface {
	Send(h runtime.AgentHandle, cmd runtime.Command) error
}

var _ Sender = (*runtime.Runtime)(nil)

// Option configures a Scheduler
type Option func(*Scheduler)

// WithInterval sets the check interval
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler manages scheduled prompts
type Scheduler struct {
	sender   Sender
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	schedules map[string]*Schedule
	order     []string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler creates a scheduler delivering prompts through sender
func NewScheduler(sender Sender, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sender:    sender,
		interval:  DefaultInterval,
		now:       time.Now,
		schedules: make(map[string]*Schedule),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a schedule for agent and computes its first run time
func (s *Scheduler) Add(name, expr, prompt string, agent runtime.AgentHandle) (Schedule, error) {
	if prompt == "" {
		return Schedule{}, ErrEmptyPrompt
	}
	now := s.now()
	next, err := NextRun(expr, now)
	if err != nil {
		return Schedule{}, err
	}

	sched := &Schedule{
		ID:        uuid.New().String(),
		Name:      name,
		CronExpr:  expr,
		Prompt:    prompt,
		Agent:     agent,
		Enabled:   true,
		CreatedAt: now,
		NextRunAt: &next,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return Schedule{}, ErrSchedulerStopped
	}
	s.schedules[sched.ID] = sched
	s.order = append(s.order, sched.ID)
	logger.Info("Added schedule %s (%s) for %s, next run at %s", sched.ID, expr, agent, next.Format(time.RFC3339))
	return sched.clone(), nil
}

// Remove deletes a schedule
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	delete(s.schedules, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// Get returns a copy of one schedule
func (s *Scheduler) Get(id string) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return sched.clone(), nil
}

// List returns copies of all schedules in creation order
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Schedule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.schedules[id].clone())
	}
	return out
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.loop()
	logger.Info("Scheduler started")
}

// Stop ends the loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunDue()
		}
	}
}

// RunDue fires every enabled schedule whose next run time has passed and
// returns how many fired
func (s *Scheduler) RunDue() int {
	now := s.now()

	s.mu.Lock()
	var due []*Schedule
	for _, id := range s.order {
		sched := s.schedules[id]
		if sched.Enabled && sched.NextRunAt != nil && !sched.NextRunAt.After(now) {
			due = append(due, sched)
		}
	}
	s.mu.Unlock()

	for _, sched := range due {
		s.fire(sched, now, true)
	}
	return len(due)
}

// TriggerNow fires a schedule immediately without moving its next run time
func (s *Scheduler) TriggerNow(id string) error {
	s.mu.Lock()
	sched, ok := s.schedules[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	logger.Info("Manually triggering schedule %s", id)
	return s.fire(sched, s.now(), false)
}

// fire sends the prompt and records the outcome. Scheduled firings also
// advance the next run time.
func (s *Scheduler) fire(sched *Schedule, now time.Time, advance bool) error {
	s.mu.Lock()
	agent, prompt, expr := sched.Agent, sched.Prompt, sched.CronExpr
	s.mu.Unlock()

	err := s.sender.Send(agent, runtime.UserMessage(prompt))

	s.mu.Lock()
	defer s.mu.Unlock()
	sched.LastRunAt = &now
	sched.Runs++
	if err != nil {
		sched.LastStatus = ExecutionFailed
		sched.LastError = err.Error()
		metrics.RecordScheduledPrompt(string(ExecutionFailed))
		logger.Error("Failed to run schedule %s for %s: %v", sched.ID, agent, err)
		if errors.Is(err, runtime.ErrAgentNotFound) {
			sched.Enabled = false
			sched.NextRunAt = nil
			logger.Warn("Disabled schedule %s: agent %s is gone", sched.ID, agent)
			return err
		}
	} else {
		sched.LastStatus = ExecutionSuccess
		sched.LastError = ""
		metrics.RecordScheduledPrompt(string(ExecutionSuccess))
	}

	if advance {
		next, nerr := NextRun(expr, now)
		if nerr != nil {
			logger.Error("Failed to calculate next run for schedule %s: %v", sched.ID, nerr)
			return nerr
		}
		sched.NextRunAt = &next
	}
	return err
}
