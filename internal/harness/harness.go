// Package harness реализует двухпрогонный idempotency-тест автоматизации.
//
// Harness гоняет рутину дважды подряд в PREVIEW и проверяет, что второй прогон
// запланировал НОЛЬ мутаций. Это тест повторяемости плана, не сходимости:
// план первого прогона к внешнему состоянию не применяется (применять что-то
// внутри safety-теста значило бы иметь живые креды в тесте). Сходимость
// проверяется на уровне рутины — она сравнивает целевое значение с текущим,
// а тестовый сценарий "применить план между прогонами" живёт в e2e-тестах
// и в harness-команде CLI через mock-исполнителя.
package harness

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xela07ax/proofkit-gate/internal/domain"
	"github.com/xela07ax/proofkit-gate/internal/runlog"
	"github.com/xela07ax/proofkit-gate/internal/session"
	"go.uber.org/zap"
)

// Routine — контракт автоматизации, которую проверяет harness (§ контракта:
// guard'ы → IsLive → apply/record; см. internal/automation для референса).
type Routine interface {
	Run(ctx context.Context, sess *session.Session) error
}

// GuardReporter — опциональное расширение рутины: структурированные факты
// о настройке guard'ов для записи guard_status в run-log.
type GuardReporter interface {
	GuardCounts() (reservedTerms, exclusions int)
}

type Harness struct {
	locker  Locker
	store   runlog.Store
	logger  *zap.Logger
	metrics *Metrics
}

func New(locker Locker, store runlog.Store, logger *zap.Logger, metrics *Metrics) *Harness {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Harness{
		locker:  locker,
		store:   store,
		logger:  logger.With(zap.String("mod", "harness")),
		metrics: metrics,
	}
}

// Run выполняет оба прогона и возвращает вердикт.
//
// Семантика ошибок:
//   - FAIL-вердикт — это НЕ ошибка, а валидный результат.
//   - Ошибка рутины → вердикта нет вовсе, ошибка пробрасывается.
//   - Ошибка персистентности → вердикт ВСЁ РАВНО возвращается вместе с ошибкой:
//     вычисленный результат не маскируется проблемами записи.
func (h *Harness) Run(ctx context.Context, sess *session.Session, routine Routine) (*domain.IdempotencyVerdict, error) {
	accountID := sess.AccountID()

	release, err := h.locker.Acquire(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Режим возвращаем к дефолту вызывающего при любом исходе
	defer func() {
		if err := sess.SetMode(context.Background(), domain.ModeProduction); err != nil {
			h.logger.Error("failed to restore PRODUCTION mode", zap.Error(err))
		}
	}()

	log := h.logger.With(zap.String("account", accountID))

	// Прогон 1: PREVIEW, чистый Recorder (сброс — сайд-эффект SetMode)
	if err := sess.SetMode(ctx, domain.ModePreview); err != nil {
		return nil, err
	}
	if err := routine.Run(ctx, sess); err != nil {
		h.metrics.Runs.WithLabelValues(accountID, "error").Inc()
		h.appendRunError(ctx, accountID, "first_run", err)
		return nil, fmt.Errorf("harness: first run failed: %w", err)
	}
	first := sess.Snapshot()

	// Прогон 2: тот же режим, повторный SetMode сбрасывает журнал.
	// Внешнее состояние не изменилось — в PREVIEW ничего не применялось.
	if err := sess.SetMode(ctx, domain.ModePreview); err != nil {
		return nil, err
	}
	if err := routine.Run(ctx, sess); err != nil {
		h.metrics.Runs.WithLabelValues(accountID, "error").Inc()
		h.appendRunError(ctx, accountID, "second_run", err)
		// Для дебага важно: первый прогон БЫЛ успешен
		log.Error("second run failed (first run succeeded)",
			zap.Int("first_run_mutations", first.MutationCount), zap.Error(err))
		return nil, fmt.Errorf("harness: second run failed: %w", err)
	}
	second := sess.Snapshot()

	verdict := &domain.IdempotencyVerdict{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Passed:    second.MutationCount == 0,
		FirstRun:  first,
		SecondRun: second,
		Timestamp: second.FinishedAt,
	}

	h.metrics.PlannedMutations.Observe(float64(first.MutationCount))
	h.logVerdict(log, verdict)

	// Возвращаем режим к дефолту ДО записи свидетельств: guard_status должен
	// отражать состояние guard'ов ближайшего живого прогона, не PREVIEW
	if err := sess.SetMode(ctx, domain.ModeProduction); err != nil {
		return nil, err
	}

	// Персистим ТОЛЬКО полностью собранный вердикт (никаких partial-записей
	// при прерывании) + структурированное свидетельство о guard'ах.
	var persistErr error
	if rec, err := runlog.NewRecord(runlog.KindIdempotencyVerdict, accountID, verdict); err != nil {
		persistErr = err
	} else if err := h.store.Append(ctx, rec); err != nil {
		persistErr = err
	}
	if persistErr != nil {
		log.Error("FAILED TO PERSIST VERDICT: future gate evaluations will see stale data",
			zap.Error(persistErr))
		return verdict, fmt.Errorf("harness: persist verdict: %w", persistErr)
	}

	h.appendGuardStatus(ctx, sess, routine)
	return verdict, nil
}

func (h *Harness) logVerdict(log *zap.Logger, v *domain.IdempotencyVerdict) {
	outcome := "fail"
	if v.Passed {
		outcome = "pass"
	}
	h.metrics.Runs.WithLabelValues(v.AccountID, outcome).Inc()

	log.Info("idempotency verdict",
		zap.Bool("passed", v.Passed),
		zap.Int("first_run_mutations", v.FirstRun.MutationCount),
		zap.Int("second_run_mutations", v.SecondRun.MutationCount),
	)

	if v.Passed {
		return
	}
	// Список неожиданных мутаций второго прогона — главный артефакт дебага
	for i, m := range v.SecondRun.Mutations {
		log.Warn("unexpected second-run mutation",
			zap.Int("n", i+1),
			zap.String("type", string(m.Type)),
			zap.Any("details", m.Details),
			zap.Time("at", m.Timestamp),
		)
	}
}

// appendRunError — best-effort маркер для noErrors-проверки gate'а.
// Это не вердикт: сама ошибка рутины всё равно пробрасывается наверх.
func (h *Harness) appendRunError(ctx context.Context, accountID, stage string, runErr error) {
	rec, err := runlog.NewRecord(runlog.KindRunError, accountID, domain.RunError{
		AccountID: accountID,
		Stage:     stage,
		Error:     runErr.Error(),
	})
	if err == nil {
		err = h.store.Append(ctx, rec)
	}
	if err != nil {
		h.logger.Warn("failed to append run_error marker", zap.Error(err))
	}
}

// appendGuardStatus пишет структурированное свидетельство активности guard'ов,
// чтобы Evaluator читал факты, а не выгребал подстроки из текста логов.
func (h *Harness) appendGuardStatus(ctx context.Context, sess *session.Session, routine Routine) {
	status := domain.GuardStatus{
		AccountID: sess.AccountID(),
		// К этому моменту режим уже восстановлен в PRODUCTION: поле отражает,
		// будет ли label guard активен на ближайшем живом прогоне.
		LabelGuardActive: sess.LabelGuardActive(),
		Mode:             sess.Mode(),
	}
	if gr, ok := routine.(GuardReporter); ok {
		status.ReservedTermsConfigured, status.ExclusionCount = gr.GuardCounts()
	}

	rec, err := runlog.NewRecord(runlog.KindGuardStatus, sess.AccountID(), status)
	if err == nil {
		err = h.store.Append(ctx, rec)
	}
	if err != nil {
		h.logger.Warn("failed to append guard_status record", zap.Error(err))
	}
}
