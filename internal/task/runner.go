package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// LeaseTimeout defines how long a task can hold the processing state
	// before its lease is considered expired and the task is reclaimed
	LeaseTimeout time.Duration

	// LeaseCheckInterval defines how often to scan for expired leases.
	// If zero, defaults to 1 minute
	LeaseCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:        2,
		QueueSize:          100,
		LeaseTimeout:       10 * time.Minute,
		LeaseCheckInterval: time.Minute,
	}
}

// TaskRunner manages background task processing. Submitted tasks are
// durably recorded before they enter the in-memory queue, so a crash
// between enqueue and execution loses nothing: Recover requeues every
// unfinished task on startup, and the lease monitor reclaims tasks
// whose worker died mid-execution.
type TaskRunner struct {
	store      TaskStore
	factory    Factory
	taskChan   chan Task
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(store TaskStore, factory Factory, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if config.LeaseCheckInterval == 0 {
		config.LeaseCheckInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		factory:    factory,
		taskChan:   make(chan Task, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		wg:         sync.WaitGroup{},
		config:     config,
		logger:     logger,
		errHandler: func(task Task, err error) {
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// Submit durably records a new task, then adds it to the queue.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	// Save task to database first
	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	// Then add to in-memory queue
	select {
	case r.taskChan <- task:
		return nil
	default:
		// The durable record stays; Recover or the lease monitor will
		// requeue it later.
		return fmt.Errorf("task queue is full, try again later")
	}
}

// Start initializes the worker pool and begins processing tasks
func (r *TaskRunner) Start() error {
	// Recover unfinished tasks from previous runs
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	// Start worker goroutines
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	// Start goroutine to reclaim expired leases periodically
	r.wg.Add(1)
	go r.leaseMonitor()

	return nil
}

// Stop gracefully shuts down the task runner
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.taskChan)
}

// Recover loads any unfinished tasks from the database and requeues
// them. Tasks found in processing state were interrupted by a crash;
// they are reset to pending first so the ledger reflects reality.
func (r *TaskRunner) Recover() error {
	ctx := context.Background()

	pendingTasks, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	// Interrupted tasks, regardless of lease age.
	processingTasks, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"processing_count", len(processingTasks))

	for _, record := range pendingTasks {
		r.requeue(ctx, record)
	}

	for _, record := range processingTasks {
		if err := r.store.UpdateTaskStatus(ctx, record.ID, TaskStatusPending, "Reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing task status",
				"task_id", record.ID,
				"task_type", record.Type,
				"error", err)
			continue
		}
		r.requeue(ctx, record)
	}

	return nil
}

// requeue rebuilds an executable task from its record and puts it back
// on the queue.
func (r *TaskRunner) requeue(ctx context.Context, record TaskRecord) {
	task, err := r.factory.Rebuild(record)
	if err != nil {
		r.logger.Error("failed to rebuild task from record",
			"task_id", record.ID,
			"task_type", record.Type,
			"error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, record.ID, TaskStatusFailed, err.Error()); updateErr != nil {
			r.logger.Error("failed to mark unbuildable task failed",
				"task_id", record.ID,
				"error", updateErr)
		}
		return
	}

	select {
	case r.taskChan <- task:
		// Successfully requeued
	default:
		r.logger.Error("failed to requeue task, queue is full",
			"task_id", record.ID,
			"task_type", record.Type)
	}
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-r.taskChan:
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processTask(task, id)
		}
	}
}

// processTask handles execution of a single task. Moving the record to
// processing takes the lease; the lease holds until the task finishes
// or the lease monitor reclaims it.
func (r *TaskRunner) processTask(task Task, workerID int) {
	ctx := context.Background()
	logger := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
		logger.Error("failed to update task status to processing", "error", err)
		return
	}

	logger.Info("processing task")

	err := task.Execute(ctx)

	if err != nil {
		logger.Error("task execution failed", "error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			logger.Error("failed to update task status to failed", "error", updateErr)
		}

		r.errHandler(task, err)
	} else {
		logger.Info("task completed successfully")
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusCompleted, ""); updateErr != nil {
			logger.Error("failed to update task status to completed", "error", updateErr)
		}
	}
}

// leaseMonitor periodically reclaims tasks whose processing lease has
// expired, resetting them to pending and requeueing them. Task
// execution is idempotent (recorded row ordinals are never reapplied),
// so reclaiming a lease that is merely slow rather than dead is safe.
func (r *TaskRunner) leaseMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.LeaseCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			expired, err := r.store.GetProcessingTasks(ctx, r.config.LeaseTimeout)
			if err != nil {
				r.logger.Error("failed to check for expired leases", "error", err)
				continue
			}

			if len(expired) == 0 {
				continue
			}

			r.logger.Info("reclaiming expired task leases", "count", len(expired))

			for _, record := range expired {
				if err := r.store.UpdateTaskStatus(ctx, record.ID, TaskStatusPending,
					"Lease expired, reset for redelivery"); err != nil {
					r.logger.Error("failed to reset expired task",
						"task_id", record.ID,
						"task_type", record.Type,
						"error", err)
					continue
				}
				r.requeue(ctx, record)
			}
		}
	}
}
