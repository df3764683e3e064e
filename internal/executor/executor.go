package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/proofkit-gate/internal/domain"
)

// Executor — pluggable исполнитель реальных мутаций рекламной платформы.
// Конкретные операции (бюджеты, негативы, RSA) — вне ядра; ядру важен только
// safety-конверт вокруг вызова Apply.
type Executor interface {
	Apply(ctx context.Context, m domain.MutationRecord) error
}

// ThrottleError возвращает исполнитель, когда платформа просит притормозить
// (аналог Retry-After). Reliability-обёртка использует RetryAfter как задержку.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("executor: throttled by platform, retry after %s", e.RetryAfter)
}
