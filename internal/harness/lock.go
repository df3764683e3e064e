package harness

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/proofkit-gate/internal/infra"
	"go.uber.org/zap"
)

// ErrLocked — по аккаунту уже идёт прогон harness'а.
var ErrLocked = errors.New("harness: another run is in progress for this account")

// Locker сериализует прогоны harness'а по аккаунту: два пересекающихся
// прогона испортили бы reset-семантику общего Recorder'а.
type Locker interface {
	// Acquire берёт лок или возвращает ErrLocked. release обязателен к вызову.
	Acquire(ctx context.Context, accountID string) (release func(), err error)
}

// MemoryLocker — внутрипроцессная реализация (тесты, одиночный CLI).
type MemoryLocker struct {
	mu    sync.Mutex
	taken map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{taken: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(_ context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.taken[accountID] {
		return nil, ErrLocked
	}
	l.taken[accountID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.taken, accountID)
	}, nil
}

// RedisLocker — межпроцессный лок на SetNX с TTL.
// TTL страхует от вечного лока после убитого процесса; release удаляет ключ
// только если токен наш (лок мог истечь и достаться другому прогону).
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocker(rdb *redis.Client, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rdb:    rdb,
		ttl:    10 * time.Minute,
		logger: logger.With(zap.String("mod", "harness-lock")),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, accountID string) (func(), error) {
	key := infra.HarnessLockKey(accountID)
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func() {
		// Background: релиз должен пройти даже при отменённом ctx прогона
		rCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		val, err := l.rdb.Get(rCtx, key).Result()
		if err != nil || val != token {
			l.logger.Warn("harness lock already expired or stolen", zap.String("account", accountID))
			return
		}
		if err := l.rdb.Del(rCtx, key).Err(); err != nil {
			l.logger.Warn("failed to release harness lock", zap.Error(err))
		}
	}
	return release, nil
}
