package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/shelf-sync/app/connectivity"
)

// Handler is a unit of scheduled work. The context is cancelled when the
// execution is cancelled or the scheduler stops.
type Handler func(ctx context.Context) error

// Constraints gate an execution's ticks. A tick whose constraints are not
// met is skipped, not rescheduled; the next tick re-evaluates.
type Constraints struct {
	RequiresConnectivity bool
	WifiOnly             bool
}

// ConnectivityGate answers whether the current connection allows syncing.
type ConnectivityGate interface {
	CanSync(wifiOnly bool) bool
}

var _ ConnectivityGate = (*connectivity.Gate)(nil)

type execution struct {
	id     string
	taskID string
	cancel context.CancelFunc
}

// Scheduler runs registered tasks on periodic schedules. Scheduling the same
// task again cancels the previous execution first, so a task has at most one
// active schedule.
type Scheduler struct {
	gate ConnectivityGate

	mu         sync.Mutex
	handlers   map[string]Handler
	executions map[string]*execution
	byTask     map[string]string
	wg         sync.WaitGroup
	stopped    bool
}

func New(gate ConnectivityGate) *Scheduler {
	return &Scheduler{
		gate:       gate,
		handlers:   make(map[string]Handler),
		executions: make(map[string]*execution),
		byTask:     make(map[string]string),
	}
}

// RegisterTask binds a handler to a task id. Re-registering replaces the
// handler for future executions.
func (s *Scheduler) RegisterTask(taskID string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskID] = handler
}

// SchedulePeriodic starts running the task every interval and returns the
// execution id. Any previous schedule for the same task is cancelled first.
func (s *Scheduler) SchedulePeriodic(taskID string, every time.Duration, constraints Constraints) (string, error) {
	if every <= 0 {
		return "", fmt.Errorf("invalid interval for task %s: %s", taskID, every)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", fmt.Errorf("scheduler is stopped")
	}
	handler, ok := s.handlers[taskID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("task not registered: %s", taskID)
	}

	if prevID, ok := s.byTask[taskID]; ok {
		if prev, ok := s.executions[prevID]; ok {
			prev.cancel()
			delete(s.executions, prevID)
		}
		delete(s.byTask, taskID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	exec := &execution{
		id:     uuid.NewString(),
		taskID: taskID,
		cancel: cancel,
	}
	s.executions[exec.id] = exec
	s.byTask[taskID] = exec.id

	s.wg.Add(1)
	go s.run(ctx, exec, handler, every, constraints)
	s.mu.Unlock()

	slog.Info("Task scheduled", "task", taskID, "execution", exec.id, "every", every)
	return exec.id, nil
}

func (s *Scheduler) run(ctx context.Context, exec *execution, handler Handler,
	every time.Duration, constraints Constraints) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if constraints.RequiresConnectivity && !s.gate.CanSync(constraints.WifiOnly) {
				slog.Debug("Tick skipped, connectivity constraint not met",
					"task", exec.taskID, "wifi_only", constraints.WifiOnly)
				continue
			}
			if err := handler(ctx); err != nil {
				slog.Error("Scheduled task failed", "task", exec.taskID,
					"execution", exec.id, "error", err)
			}
		}
	}
}

// CancelExecution stops one execution by id. Unknown ids are a no-op.
func (s *Scheduler) CancelExecution(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return
	}
	exec.cancel()
	delete(s.executions, executionID)
	if s.byTask[exec.taskID] == executionID {
		delete(s.byTask, exec.taskID)
	}
	slog.Info("Execution cancelled", "task", exec.taskID, "execution", executionID)
}

// CancelTask stops the task's active execution, if any.
func (s *Scheduler) CancelTask(taskID string) {
	s.mu.Lock()
	executionID, ok := s.byTask[taskID]
	s.mu.Unlock()
	if ok {
		s.CancelExecution(executionID)
	}
}

// Stop cancels every execution and waits for in-flight handlers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, exec := range s.executions {
		exec.cancel()
	}
	s.executions = make(map[string]*execution)
	s.byTask = make(map[string]string)
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("Scheduler stopped")
}
