package session

import (
	"sync"
	"time"

	"github.com/xela07ax/proofkit-gate/internal/domain"
)

// Recorder — append-only журнал запланированных мутаций одного прогона.
// Дедупликации нет намеренно: повторная запись одной и той же мутации —
// это и есть баг идемпотентности, который harness должен увидеть как есть.
type Recorder struct {
	mu        sync.Mutex
	mutations []domain.MutationRecord
	startedAt time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{startedAt: time.Now()}
}

// Reset очищает журнал в начале нового прогона.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = nil
	r.startedAt = time.Now()
}

// Record добавляет запись в журнал. Режим проставляет вызывающая Session.
func (r *Recorder) Record(m domain.MutationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, m)
}

// Snapshot возвращает копию состояния журнала, не изменяя его.
func (r *Recorder) Snapshot(mode domain.RunMode) domain.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Копируем слайс: вызывающий не должен дотянуться до внутреннего буфера
	out := make([]domain.MutationRecord, len(r.mutations))
	copy(out, r.mutations)

	return domain.RunSnapshot{
		Mode:          mode,
		MutationCount: len(out),
		Mutations:     out,
		StartedAt:     r.startedAt,
		FinishedAt:    time.Now(),
	}
}

// Count — быстрый счётчик без копирования.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mutations)
}
