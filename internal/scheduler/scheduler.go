package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task interface for scheduled tasks
type Task interface {
	Run(ctx context.Context) error
	Interval() time.Duration
	Name() string
}

// Scheduler runs each task in its own loop. Loops are independent: a slow or
// failing task never delays another.
type Scheduler struct {
	ctx      context.Context // cancelled to abort in-flight runs
	cancel   context.CancelFunc
	stopCh   chan struct{} // closed to stop starting new runs
	stopOnce sync.Once
	tasks    []Task
	wg       sync.WaitGroup
}

// New creates a new task scheduler
func New(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		tasks:  make([]Task, 0),
	}
}

// AddTask adds a task to the scheduler. Tasks added after Start are not run.
func (s *Scheduler) AddTask(task Task) {
	s.tasks = append(s.tasks, task)
}

// Tasks returns the registered tasks
func (s *Scheduler) Tasks() []Task {
	return s.tasks
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() {
	slog.Info("Starting task scheduler")
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(task)
	}
	slog.Info("Task scheduler started", "task_count", len(s.tasks))
}

// Stop stops starting new runs and waits up to grace for in-flight runs to finish.
// Runs still going after grace have their context cancelled; Stop then waits for them to return.
// It reports whether every run finished within grace.
func (s *Scheduler) Stop(grace time.Duration) bool {
	slog.Info("Stopping task scheduler", "grace", grace)
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	graceful := true
	select {
	case <-done:
	case <-time.After(grace):
		graceful = false
		slog.Warn("Tasks still running after grace period, cancelling", "grace", grace)
		s.cancel()
		<-done
	}
	s.cancel()

	slog.Info("Task scheduler stopped", "graceful", graceful)
	return graceful
}

// runTask runs a single task on its schedule
func (s *Scheduler) runTask(task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval())
	defer ticker.Stop()

	// Run immediately on start
	s.runOnce(task)

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			// A tick and a stop can be ready together; stop wins
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.runOnce(task)
		}
	}
}

func (s *Scheduler) runOnce(task Task) {
	if err := task.Run(s.ctx); err != nil {
		slog.Error("Error running task", "task", task.Name(), "error", err)
	}
}
