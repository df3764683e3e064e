package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/proofkit-gate/internal/domain"
)

// Типы записей run-log'а.
const (
	KindIdempotencyVerdict = "idempotency_verdict"
	KindGateDecision       = "gate_decision"
	KindGuardStatus        = "guard_status"
	KindRunError           = "run_error"
)

// ErrNoVerdict — в журнале нет ни одного вердикта для аккаунта.
var ErrNoVerdict = errors.New("runlog: no idempotency verdict found")

// Record — конверт одной append-only записи журнала.
// Контракт хранилища: только append, упорядоченность по Timestamp,
// чтение "последние N по фильтру, новые первыми".
type Record struct {
	ID        string          `json:"id"` // UUID записи
	Kind      string          `json:"kind"`
	AccountID string          `json:"account_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRecord упаковывает payload в конверт с UUID и текущим временем.
func NewRecord(kind, accountID string, payload interface{}) (Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("runlog: marshal payload: %w", err)
	}
	return Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Store — внешний append-only журнал вердиктов и решений.
type Store interface {
	// Append дописывает запись. Update/Delete в контракте нет.
	Append(ctx context.Context, rec Record) error
	// Recent возвращает до limit последних записей по аккаунту и типу,
	// новые первыми. Пустой kind — без фильтра по типу.
	Recent(ctx context.Context, accountID, kind string, limit int) ([]Record, error)
}

// LatestVerdict достаёт самый свежий IdempotencyVerdict аккаунта.
func LatestVerdict(ctx context.Context, store Store, accountID string) (*domain.IdempotencyVerdict, error) {
	recs, err := store.Recent(ctx, accountID, KindIdempotencyVerdict, 1)
	if err != nil {
		return nil, fmt.Errorf("runlog: read verdicts: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNoVerdict
	}
	var v domain.IdempotencyVerdict
	if err := json.Unmarshal(recs[0].Payload, &v); err != nil {
		return nil, fmt.Errorf("runlog: decode verdict %s: %w", recs[0].ID, err)
	}
	return &v, nil
}
