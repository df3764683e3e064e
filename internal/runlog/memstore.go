package runlog

import (
	"context"
	"sync"
)

// MemoryStore — in-memory реализация журнала для тестов и дефолтной сборки
// без инфраструктуры. Семантика идентична FileStore: append-only, новые первыми.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []Record

	// FailAppend включают тесты, проверяющие, что ошибка персистентности
	// не маскирует уже вычисленный результат.
	FailAppend error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, rec Record) error {
	if m.FailAppend != nil {
		return m.FailAppend
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, accountID, kind string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, limit)
	// Записи appended по порядку — идём с хвоста
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		rec := m.recs[i]
		if kind != "" && rec.Kind != kind {
			continue
		}
		if accountID != "" && rec.AccountID != accountID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len — всего записей в журнале (для ассертов в тестах).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

var _ Store = (*MemoryStore)(nil)
