package monitor

import (
	"sync"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateRunning   State = "running"
	StateNotifying State = "notifying"
)

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Status is a snapshot of the scheduler for health reporting.
type Status struct {
	State             State     `json:"state"`
	NextCheckpoint    time.Time `json:"next_checkpoint"`
	LastPassID        string    `json:"last_pass_id,omitempty"`
	LastPassStarted   time.Time `json:"last_pass_started"`
	LastPassFinished  time.Time `json:"last_pass_finished"`
	LastError         string    `json:"last_error,omitempty"`
	Passes            int       `json:"passes"`
	EntitiesProcessed int       `json:"entities_processed"`
	EntitiesFailed    int       `json:"entities_failed"`
	NewItems          int       `json:"new_items"`
	Notified          int       `json:"notified"`
	Health            string    `json:"health"`
}

type statusTracker struct {
	mu     sync.RWMutex
	status Status
}

func (t *statusTracker) update(fn func(s *Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
}

func (t *statusTracker) snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	s.Health = health(s)
	return s
}

// health grades the last pass by its share of failed entities.
func health(s Status) string {
	if s.LastError != "" {
		return HealthUnhealthy
	}
	total := s.EntitiesProcessed + s.EntitiesFailed
	if total == 0 || s.EntitiesFailed == 0 {
		return HealthHealthy
	}
	rate := float64(s.EntitiesFailed) / float64(total)
	if rate >= 0.5 {
		return HealthUnhealthy
	}
	return HealthDegraded
}
