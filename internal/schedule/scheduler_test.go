package schedule

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HyphaGroup/kepoki/internal/runtime"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []runtime.Command
	err  error
}

func (f *fakeSender) Send(h runtime.AgentHandle, cmd runtime.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestScheduler(sender Sender) (*Scheduler, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)}
	return NewScheduler(sender, WithClock(clock.Now)), clock
}

var testAgent = runtime.AgentHandle{Name: "conversational-agent", ID: uuid.New()}

func TestScheduler_Add(t *testing.T) {
	s, _ := newTestScheduler(&fakeSender{})

	tests := []struct {
		name    string
		expr    string
		prompt  string
		wantErr error
	}{
		{name: "valid", expr: "*/5 * * * *", prompt: "status?"},
		{name: "invalid cron", expr: "nope", prompt: "status?", wantErr: ErrInvalidCron},
		{name: "empty prompt", expr: "* * * * *", wantErr: ErrEmptyPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := s.Add("check", tt.expr, tt.prompt, testAgent)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Add() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			want := time.Date(2025, 1, 15, 10, 35, 0, 0, time.UTC)
			if sched.NextRunAt == nil || !sched.NextRunAt.Equal(want) {
				t.Errorf("NextRunAt = %v, want %v", sched.NextRunAt, want)
			}
			if !sched.Enabled {
				t.Error("schedule should be enabled")
			}
		})
	}

	if got := len(s.List()); got != 1 {
		t.Errorf("List() = %d schedules, want 1", got)
	}
}

func TestScheduler_RunDue(t *testing.T) {
	sender := &fakeSender{}
	s, clock := newTestScheduler(sender)
	sched, err := s.Add("check", "*/5 * * * *", "status?", testAgent)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if n := s.RunDue(); n != 0 {
		t.Errorf("RunDue() before due = %d, want 0", n)
	}

	clock.Advance(5 * time.Minute)
	if n := s.RunDue(); n != 1 {
		t.Fatalf("RunDue() = %d, want 1", n)
	}
	if sender.count() != 1 {
		t.Fatalf("sent = %d, want 1", sender.count())
	}
	if got := sender.sent[0]; got != runtime.UserMessage("status?") {
		t.Errorf("command = %+v, want UserMessage", got)
	}

	got, _ := s.Get(sched.ID)
	if got.Runs != 1 || got.LastStatus != ExecutionSuccess {
		t.Errorf("runs/status = %d/%s, want 1/success", got.Runs, got.LastStatus)
	}
	wantNext := time.Date(2025, 1, 15, 10, 40, 0, 0, time.UTC)
	if got.NextRunAt == nil || !got.NextRunAt.Equal(wantNext) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, wantNext)
	}

	// same instant again is not due
	if n := s.RunDue(); n != 0 {
		t.Errorf("RunDue() repeated = %d, want 0", n)
	}
}

func TestScheduler_DisablesWhenAgentGone(t *testing.T) {
	sender := &fakeSender{err: &runtime.AgentNotFoundError{Agent: testAgent}}
	s, clock := newTestScheduler(sender)
	sched, _ := s.Add("check", "* * * * *", "status?", testAgent)

	clock.Advance(time.Minute)
	s.RunDue()

	got, _ := s.Get(sched.ID)
	if got.Enabled {
		t.Error("schedule should be disabled")
	}
	if got.LastStatus != ExecutionFailed || got.LastError == "" {
		t.Errorf("status = %s (%q), want failed", got.LastStatus, got.LastError)
	}

	clock.Advance(time.Minute)
	if n := s.RunDue(); n != 0 {
		t.Errorf("RunDue() after disable = %d, want 0", n)
	}
}

func TestScheduler_TriggerNow(t *testing.T) {
	sender := &fakeSender{}
	s, _ := newTestScheduler(sender)
	sched, _ := s.Add("check", "0 0 * * *", "daily report", testAgent)

	if err := s.TriggerNow(sched.ID); err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}
	if sender.count() != 1 {
		t.Errorf("sent = %d, want 1", sender.count())
	}
	got, _ := s.Get(sched.ID)
	if !got.NextRunAt.Equal(*sched.NextRunAt) {
		t.Errorf("NextRunAt moved to %v", got.NextRunAt)
	}

	if err := s.TriggerNow("missing"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("TriggerNow(missing) error = %v, want ErrScheduleNotFound", err)
	}
}

func TestScheduler_Remove(t *testing.T) {
	s, _ := newTestScheduler(&fakeSender{})
	sched, _ := s.Add("check", "* * * * *", "status?", testAgent)

	if err := s.Remove(sched.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove(sched.ID); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("Remove() twice error = %v, want ErrScheduleNotFound", err)
	}
	if len(s.List()) != 0 {
		t.Error("List() should be empty")
	}
}

func TestScheduler_Loop(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(sender, WithInterval(10*time.Millisecond))
	if _, err := s.Add("fast", "@every 1s", "tick", testAgent); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for sender.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduled prompt never fired")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestScheduler_AddAfterStop(t *testing.T) {
	s, _ := newTestScheduler(&fakeSender{})
	s.Stop()
	if _, err := s.Add("late", "* * * * *", "hi", testAgent); !errors.Is(err, ErrSchedulerStopped) {
		t.Errorf("Add() after Stop error = %v, want ErrSchedulerStopped", err)
	}
}
