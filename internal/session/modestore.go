package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/proofkit-gate/internal/domain"
	"github.com/xela07ax/proofkit-gate/internal/infra"
)

// ModeStore — опциональная персистентность выбранного режима между
// отдельными запусками CLI. Для корректности не нужна, только для удобства.
type ModeStore interface {
	Get(ctx context.Context, accountID string) (domain.RunMode, bool, error)
	Set(ctx context.Context, accountID string, mode domain.RunMode) error
}

// MemoryModeStore — дефолтная in-memory реализация (тесты, одиночный процесс).
type MemoryModeStore struct {
	mu    sync.RWMutex
	modes map[string]domain.RunMode
}

func NewMemoryModeStore() *MemoryModeStore {
	return &MemoryModeStore{modes: make(map[string]domain.RunMode)}
}

func (m *MemoryModeStore) Get(_ context.Context, accountID string) (domain.RunMode, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mode, ok := m.modes[accountID]
	return mode, ok, nil
}

func (m *MemoryModeStore) Set(_ context.Context, accountID string, mode domain.RunMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[accountID] = mode
	return nil
}

// RedisModeStore — durable-реализация поверх redis.
// TTL защищает от "застрявшего" тестового режима: через сутки ключ истекает
// и аккаунт возвращается к дефолтному PRODUCTION.
type RedisModeStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisModeStore(rdb *redis.Client) *RedisModeStore {
	return &RedisModeStore{rdb: rdb, ttl: 24 * time.Hour}
}

func (r *RedisModeStore) Get(ctx context.Context, accountID string) (domain.RunMode, bool, error) {
	val, err := r.rdb.Get(ctx, infra.RunModeKey(accountID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.RunMode(val), true, nil
}

func (r *RedisModeStore) Set(ctx context.Context, accountID string, mode domain.RunMode) error {
	return r.rdb.Set(ctx, infra.RunModeKey(accountID), string(mode), r.ttl).Err()
}
