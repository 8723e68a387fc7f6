package repository

import "context"

// GroupTaskStore persists the current group task id across restarts.
// Get returns domain.ErrNotFound when nothing is stored.
type GroupTaskStore interface {
	Save(ctx context.Context, taskID string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}
