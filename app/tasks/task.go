package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/bankwatch/app/news"
)

type TaskType string

const (
	TaskTypeFetchNews    TaskType = "fetch_news"
	TaskTypeSyncRegistry TaskType = "sync_registry"
)

const DefaultMaxRetries = 3

// Subject is what a task works on. It is copied onto every status update.
type Subject struct {
	Entity string `json:"entity,omitempty"`
	Range  string `json:"range,omitempty"`
	Topic  string `json:"topic,omitempty"`
}

// EntitySubject describes a fetch for entity over r, optionally narrowed to topic.
func EntitySubject(entity string, r news.DateRange, topic string) Subject {
	s := Subject{Entity: entity, Topic: topic}
	if r.Valid() {
		s.Range = r.String()
	}
	return s
}

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSubject() Subject
	// Outcome is a short description of the last successful run, empty before it.
	Outcome() string
	Retries() int
	// Retry records another attempt and reports whether it is allowed.
	Retry() (int, bool)
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every task. Concrete tasks embed it and implement Execute.
type Task struct {
	ID         string
	Type       TaskType
	Subject    Subject
	MaxRetries int

	mu        sync.Mutex
	retries   int
	startedAt time.Time
	outcome   string
}

func NewTask(taskType TaskType, subject Subject) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Subject:    subject,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSubject() Subject {
	return t.Subject
}

func (t *Task) Outcome() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

func (t *Task) setOutcome(outcome string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcome = outcome
}

func (t *Task) Retries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retries
}

func (t *Task) Retry() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retries >= t.MaxRetries {
		return t.retries, false
	}
	t.retries++
	return t.retries, true
}

func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = time.Now()
}

func (t *Task) GetDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() {
		return 0
	}
	return time.Since(t.startedAt)
}
