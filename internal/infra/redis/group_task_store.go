package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/ports/repository"
)

var (
	_ repository.GroupTaskStore = (*GroupTaskRepo)(nil)
	_ repository.GroupTaskStore = (*MemoryGroupTaskStore)(nil)
)

type groupTaskRecord struct {
	TaskID  string    `json:"task_id"`
	SavedAt time.Time `json:"saved_at"`
}

// GroupTaskRepo keeps the current group task id in Redis so a restarted console
// can still attach a group insight to the last uploaded group report.
type GroupTaskRepo struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func NewGroupTaskRepo(client RedisClient, prefix string, ttl time.Duration) *GroupTaskRepo {
	return &GroupTaskRepo{client: client, prefix: prefix, ttl: ttl}
}

func (r *GroupTaskRepo) key() string {
	return fmt.Sprintf("%s:current_group_task_id", r.prefix)
}

func (r *GroupTaskRepo) Save(ctx context.Context, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(groupTaskRecord{TaskID: taskID, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(), data, r.ttl)
}

func (r *GroupTaskRepo) Get(ctx context.Context) (string, error) {
	data, err := r.client.Get(ctx, r.key())
	if err != nil {
		return "", err
	}
	var rec groupTaskRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return "", fmt.Errorf("decode group task record: %w", err)
	}
	if rec.TaskID == "" {
		return "", domain.ErrNotFound
	}
	return rec.TaskID, nil
}

func (r *GroupTaskRepo) Clear(ctx context.Context) error {
	err := r.client.Del(ctx, r.key())
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// MemoryGroupTaskStore is used when no Redis is configured; it lives as long as the process.
type MemoryGroupTaskStore struct {
	mu     sync.Mutex
	taskID string
}

func NewMemoryGroupTaskStore() *MemoryGroupTaskStore { return &MemoryGroupTaskStore{} }

func (m *MemoryGroupTaskStore) Save(_ context.Context, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.ErrInvalidArgument
	}
	m.mu.Lock()
	m.taskID = taskID
	m.mu.Unlock()
	return nil
}

func (m *MemoryGroupTaskStore) Get(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taskID == "" {
		return "", domain.ErrNotFound
	}
	return m.taskID, nil
}

func (m *MemoryGroupTaskStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.taskID = ""
	m.mu.Unlock()
	return nil
}
