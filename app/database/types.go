package database

import (
	"errors"
	"time"
)

// ErrConflict marks a duplicate-key write. Repositories swallow it and report skipped rows instead.
var ErrConflict = errors.New("duplicate key")

type Coverage struct {
	Entity      string
	CoveredFrom time.Time
	CoveredTo   time.Time
	LastRefresh time.Time
}

type Subscription struct {
	SubscriberID string
	Entity       string
	LastNotified time.Time
	CreatedAt    time.Time
}
