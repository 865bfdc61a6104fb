package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeGate struct {
	allow atomic.Bool
}

func (f *fakeGate) CanSync(_ bool) bool {
	return f.allow.Load()
}

func openGate() *fakeGate {
	gate := &fakeGate{}
	gate.allow.Store(true)
	return gate
}

func TestSchedulePeriodicRunsTask(t *testing.T) {
	s := New(openGate())
	defer s.Stop()

	runs := make(chan struct{}, 10)
	s.RegisterTask("tick", func(_ context.Context) error {
		select {
		case runs <- struct{}{}:
		default:
		}
		return nil
	})

	if _, err := s.SchedulePeriodic("tick", 5*time.Millisecond, Constraints{}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("Task never ran")
	}
}

func TestSchedulePeriodicUnregisteredTask(t *testing.T) {
	s := New(openGate())
	defer s.Stop()

	if _, err := s.SchedulePeriodic("missing", time.Second, Constraints{}); err == nil {
		t.Error("Expected error for unregistered task")
	}
}

func TestSchedulePeriodicRejectsInvalidInterval(t *testing.T) {
	s := New(openGate())
	defer s.Stop()

	s.RegisterTask("tick", func(_ context.Context) error { return nil })

	if _, err := s.SchedulePeriodic("tick", 0, Constraints{}); err == nil {
		t.Error("Expected error for zero interval")
	}
}

func TestRescheduleCancelsPreviousExecution(t *testing.T) {
	s := New(openGate())
	defer s.Stop()

	var runs atomic.Int32
	s.RegisterTask("tick", func(_ context.Context) error {
		runs.Add(1)
		return nil
	})

	first, err := s.SchedulePeriodic("tick", 5*time.Millisecond, Constraints{})
	if err != nil {
		t.Fatal(err)
	}

	// Wait for at least one run from the first schedule.
	deadline := time.After(time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("First schedule never ran")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Rescheduling with a long interval must stop the fast ticker.
	second, err := s.SchedulePeriodic("tick", time.Hour, Constraints{})
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Error("Expected a fresh execution id on reschedule")
	}

	time.Sleep(20 * time.Millisecond)
	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != settled {
		t.Error("Expected no further runs after rescheduling to a long interval")
	}
}

func TestConstraintSkipsTicksWhileGateClosed(t *testing.T) {
	gate := &fakeGate{}
	s := New(gate)
	defer s.Stop()

	var runs atomic.Int32
	s.RegisterTask("sync", func(_ context.Context) error {
		runs.Add(1)
		return nil
	})

	if _, err := s.SchedulePeriodic("sync", 5*time.Millisecond, Constraints{RequiresConnectivity: true}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatalf("Expected no runs while the gate is closed, got %d", runs.Load())
	}

	// The next tick after the gate opens runs normally.
	gate.allow.Store(true)
	deadline := time.After(time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Task never ran after the gate opened")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestCancelExecutionStopsTask(t *testing.T) {
	s := New(openGate())
	defer s.Stop()

	var runs atomic.Int32
	s.RegisterTask("tick", func(_ context.Context) error {
		runs.Add(1)
		return nil
	})

	executionID, err := s.SchedulePeriodic("tick", 5*time.Millisecond, Constraints{})
	if err != nil {
		t.Fatal(err)
	}

	s.CancelExecution(executionID)

	time.Sleep(20 * time.Millisecond)
	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != settled {
		t.Error("Expected no runs after cancellation")
	}
}

func TestCancelUnknownExecutionIsNoop(t *testing.T) {
	s := New(openGate())
	defer s.Stop()

	s.CancelExecution("does-not-exist")
	s.CancelTask("does-not-exist")
}

func TestStopRejectsNewSchedules(t *testing.T) {
	s := New(openGate())
	s.RegisterTask("tick", func(_ context.Context) error { return nil })
	s.Stop()

	if _, err := s.SchedulePeriodic("tick", time.Second, Constraints{}); err == nil {
		t.Error("Expected error scheduling on a stopped scheduler")
	}
}
