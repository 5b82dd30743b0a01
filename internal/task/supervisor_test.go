package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func blockUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisor_StartStop(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(nil)
	var started atomic.Int32
	s.Add("a", func(ctx context.Context) error {
		started.Add(1)
		return blockUntilCancelled(ctx)
	})
	s.Add("b", func(ctx context.Context) error {
		started.Add(1)
		return blockUntilCancelled(ctx)
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.After(time.Second)
	for started.Load() != 2 {
		select {
		case <-deadline:
			t.Fatal("tasks never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestSupervisor_DoubleStart(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(nil)
	s.Add("a", blockUntilCancelled)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start = %v, want ErrAlreadyStarted", err)
	}
}

func TestSupervisor_TaskErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := NewSupervisor(nil)
	s.Add("failing", func(context.Context) error { return boom })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	err := s.Stop(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("stop = %v, want the task's error", err)
	}
}

func TestSupervisor_CleanCancelIsNotAnError(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(nil)
	s.Add("loop", blockUntilCancelled)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop = %v, want nil for context.Canceled exits", err)
	}
}

func TestSupervisor_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop without start = %v, want nil", err)
	}
}

func TestSupervisor_StopTimesOut(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(nil)
	release := make(chan struct{})
	s.Add("stuck", func(ctx context.Context) error {
		<-release // ignores cancellation
		return nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); err == nil {
		t.Fatal("expected timeout error for a stuck task")
	}
	close(release)
}

func TestSupervisor_ParentCancelStopsTasks(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(nil)
	done := make(chan struct{})
	s.Add("loop", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not observe parent cancellation")
	}
	_ = s.Stop(context.Background())
}
