package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/bankwatch/app/cache"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateRetrying  TaskState = "retrying"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

type TaskStatus struct {
	ID         string    `json:"id"`
	Type       TaskType  `json:"type"`
	Subject    Subject   `json:"subject"`
	State      TaskState `json:"state"`
	RetryCount int       `json:"retry_count"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Scheduler runs tasks on a fixed worker pool with capped exponential retry, and periodically
// enqueues a registry sync.
type Scheduler struct {
	newSyncTask  func() TaskInterface
	syncInterval time.Duration
	workerCount  int
	taskTimeout  time.Duration
	retryDelay   func(retry int) time.Duration
	statuses     *cache.TTLCache[TaskStatus]
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

// NewScheduler creates a scheduler. newSyncTask may be nil to disable periodic registry sync.
func NewScheduler(workerCount int, syncInterval time.Duration, newSyncTask func() TaskInterface) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if workerCount <= 0 {
		workerCount = 1
	}

	return &Scheduler{
		newSyncTask:  newSyncTask,
		syncInterval: syncInterval,
		workerCount:  workerCount,
		taskTimeout:  5 * time.Minute,
		retryDelay:   retryDelay,
		statuses:     cache.NewTTLCache[TaskStatus](time.Hour, 1000),
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.newSyncTask == nil || s.syncInterval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.EnqueueTask(s.newSyncTask()); err != nil {
					slog.Warn("Failed to enqueue SyncRegistryTask", "error", err)
				}
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	s.setStatus(task, TaskStateQueued, nil)
	select {
	case s.taskQueue <- task:
		return nil
	default:
		err := fmt.Errorf("task queue is full")
		s.setStatus(task, TaskStateFailed, err)
		return err
	}
}

// GetTaskStatus reports the last known state of a task enqueued within the past hour.
func (s *Scheduler) GetTaskStatus(id string) (TaskStatus, bool) {
	return s.statuses.Get(s.ctx, id)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()
	s.setStatus(task, TaskStateRunning, nil)

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.setStatus(task, TaskStateCompleted, nil)
		return
	}

	subject := task.GetSubject()
	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "entity", subject.Entity, "retry_count", task.Retries(), "error", err)

	retry, ok := task.Retry()
	if !ok {
		s.setStatus(task, TaskStateFailed, err)
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "entity", subject.Entity, "range", subject.Range, "retry_count", retry, "last_error", err)
		return
	}

	delay := s.retryDelay(retry)
	s.setStatus(task, TaskStateRetrying, err)

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "entity", subject.Entity, "range", subject.Range, "retry_count", retry, "delay", delay.String())

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				s.setStatus(task, TaskStateFailed, retryErr)
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.Retries(), "error", retryErr)
			}
		}
	}()
}

func (s *Scheduler) setStatus(task TaskInterface, state TaskState, err error) {
	status := TaskStatus{
		ID:         task.GetID(),
		Type:       task.GetType(),
		Subject:    task.GetSubject(),
		State:      state,
		RetryCount: task.Retries(),
		Outcome:    task.Outcome(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	s.statuses.Set(s.ctx, task.GetID(), status)
}

// retryDelay doubles from one second and is capped at 30 seconds.
func retryDelay(retry int) time.Duration {
	delay := time.Duration(1<<uint(retry-1)) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
