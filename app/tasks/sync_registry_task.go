package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type RegistryLoader interface {
	Run() error
	GetEntityCount() int
	GetSourceCount() int
}

// SyncRegistryTask reloads entity and source configuration. onSync runs after a successful reload.
type SyncRegistryTask struct {
	Task
	registry RegistryLoader
	onSync   func()
}

func NewSyncRegistryTask(registry RegistryLoader, onSync func()) *SyncRegistryTask {
	return &SyncRegistryTask{
		Task:     NewTask(TaskTypeSyncRegistry, Subject{}),
		registry: registry,
		onSync:   onSync,
	}
}

func (t *SyncRegistryTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.registry.Run(); err != nil {
		return fmt.Errorf("failed to reload registry: %w", err)
	}

	if t.onSync != nil {
		t.onSync()
	}
	t.setOutcome(fmt.Sprintf("%d entities, %d sources", t.registry.GetEntityCount(), t.registry.GetSourceCount()))

	slog.Info("Task completed",
		"type", "SyncRegistry",
		"entities", t.registry.GetEntityCount(),
		"sources", t.registry.GetSourceCount(),
		"duration", t.GetDuration())

	return nil
}
