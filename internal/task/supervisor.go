// Package task supervises the daemon's long-running loops: it owns
// start and cancel for each of them and propagates shutdown
// deterministically.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("task: supervisor already started")

// Task is one long-running loop. Run blocks until ctx is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor runs registered tasks under a shared context. Cancelling
// that context, via Stop or the parent, interrupts every task's
// current sleep or in-flight step.
type Supervisor struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []Task
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewSupervisor creates a Supervisor. Tasks must be added before Start.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger.With("component", "task")}
}

// Add registers a task.
func (s *Supervisor) Add(name string, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, Task{Name: name, Run: run})
}

// Start launches all registered tasks. Each task's exit is logged; a
// task returning context.Canceled is a clean shutdown, anything else is
// an error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)

	for _, t := range s.tasks {
		task := t
		s.logger.Info("task started", "task", task.Name)
		s.group.Go(func() error {
			err := task.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("task exited with error", "task", task.Name, "error", err)
				return fmt.Errorf("task %s: %w", task.Name, err)
			}
			s.logger.Info("task stopped", "task", task.Name)
			return nil
		})
	}
	return nil
}

// Stop cancels all tasks and waits for them to finish or for ctx to
// expire, whichever comes first.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("task: shutdown wait: %w", ctx.Err())
	}
}
