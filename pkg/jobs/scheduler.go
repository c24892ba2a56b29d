package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of periodic work. It must honour ctx cancellation.
type Task func(ctx context.Context) error

// SchedulerConfig configures a periodic task.
type SchedulerConfig struct {
	Interval   time.Duration
	RunTimeout time.Duration
	RunOnStart bool
	Logger     *zap.Logger
}

// Scheduler runs a task on a fixed interval. Each run gets its own deadline
// and runs never overlap.
type Scheduler struct {
	name string
	task Task
	cfg  SchedulerConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewScheduler builds a scheduler for task.
func NewScheduler(name string, task Task, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.RunTimeout <= 0 || cfg.RunTimeout > cfg.Interval {
		cfg.RunTimeout = cfg.Interval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{name: name, task: task, cfg: cfg}
}

// Start launches the ticker loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		if s.cfg.RunOnStart {
			s.runOnce(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
	s.cfg.Logger.Sugar().Infow("scheduler started", "scheduler", s.name, "interval", s.cfg.Interval)
}

// Stop cancels the loop and any in-flight run, then waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()
	<-done
	s.cfg.Logger.Sugar().Infow("scheduler stopped", "scheduler", s.name)
}

func (s *Scheduler) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()
	start := time.Now()
	if err := s.task(ctx); err != nil {
		s.cfg.Logger.Sugar().Warnw("scheduled task failed", "scheduler", s.name, "error", err, "duration", time.Since(start))
		return
	}
	s.cfg.Logger.Sugar().Debugw("scheduled task finished", "scheduler", s.name, "duration", time.Since(start))
}
