// Package gate реализует Promote Gate Evaluator: агрегацию независимых
// свидетельств безопасности в одно решение promote/block.
//
// Evaluator read-only по отношению к автоматизации: читает run-log и
// (опционально) backend gate status, пишет только собственное решение.
// Вся неоднозначность разрешается fail-closed: путь к canPromote=true один —
// каждая обязательная проверка явно прошла на свежих данных.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/proofkit-gate/internal/backend"
	"github.com/xela07ax/proofkit-gate/internal/domain"
	"github.com/xela07ax/proofkit-gate/internal/infra"
	"github.com/xela07ax/proofkit-gate/internal/runlog"
	"go.uber.org/zap"
)

// Сколько недавних записей сканируем в fallback-поиске guard-маркеров.
const markerScanDepth = 50

type Evaluator struct {
	cfg     infra.GateConfig
	store   runlog.Store
	backend backend.StatusProvider // nil = backend не сконфигурирован
	logger  *zap.Logger
	metrics *Metrics
}

func NewEvaluator(cfg infra.GateConfig, store runlog.Store, be backend.StatusProvider, logger *zap.Logger, metrics *Metrics) *Evaluator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Evaluator{
		cfg:     cfg,
		store:   store,
		backend: be,
		logger:  logger.With(zap.String("mod", "gate")),
		metrics: metrics,
	}
}

// Evaluate считает все проверки и собирает решение. Ошибка возвращается
// ТОЛЬКО при инфраструктурном сбое (нечитаемый run-log) — состояние ERROR;
// оно никогда молча не превращается в PROMOTE.
func (e *Evaluator) Evaluate(ctx context.Context, accountID string) (*domain.GateDecision, error) {
	start := time.Now()
	defer func() { e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	log := e.logger.With(zap.String("account", accountID))

	checks := make(map[string]domain.CheckResult, len(domain.CheckOrder))
	var warnings []string

	// 1. Свежайший вердикт idempotency-теста
	verdict, err := runlog.LatestVerdict(ctx, e.store, accountID)
	switch {
	case errors.Is(err, runlog.ErrNoVerdict):
		verdict = nil
	case err != nil:
		e.metrics.Evaluations.WithLabelValues(accountID, "error").Inc()
		return nil, fmt.Errorf("gate: run log unreadable: %w", err)
	}

	checks[domain.CheckIdempotencyTest] = e.checkIdempotency(verdict)
	checks[domain.CheckTestRecency] = e.checkRecency(verdict)

	noErrors, err := e.checkNoErrors(ctx, accountID, verdict)
	if err != nil {
		e.metrics.Evaluations.WithLabelValues(accountID, "error").Inc()
		return nil, fmt.Errorf("gate: run log unreadable: %w", err)
	}
	checks[domain.CheckNoErrors] = noErrors

	backendCheck, w := e.checkBackendGate(ctx, accountID)
	checks[domain.CheckBackendGate] = backendCheck
	warnings = append(warnings, w...)

	labelCheck, w, err := e.checkLabelGuard(ctx, accountID)
	if err != nil {
		e.metrics.Evaluations.WithLabelValues(accountID, "error").Inc()
		return nil, fmt.Errorf("gate: run log unreadable: %w", err)
	}
	checks[domain.CheckLabelGuard] = labelCheck
	warnings = append(warnings, w...)

	limitsCheck, w := e.checkMutationLimits(verdict)
	checks[domain.CheckMutationLimits] = limitsCheck
	warnings = append(warnings, w...)

	// warningsThreshold считается последним: видит все накопленные warning'и
	checks[domain.CheckWarningsThreshold] = domain.CheckResult{
		Passed:   len(warnings) <= e.cfg.MaxWarnings,
		Required: e.cfg.RequireWarningsUnderThreshold,
		Details:  fmt.Sprintf("%d warning(s), threshold %d", len(warnings), e.cfg.MaxWarnings),
	}

	decision := e.buildDecision(accountID, checks, warnings)

	for _, name := range domain.CheckOrder {
		if c := decision.Checks[name]; !c.Passed {
			e.metrics.CheckFailures.WithLabelValues(name).Inc()
		}
	}
	result := "block"
	if decision.CanPromote {
		result = "promote"
	}
	e.metrics.Evaluations.WithLabelValues(accountID, result).Inc()
	log.Info("gate decision",
		zap.Bool("can_promote", decision.CanPromote),
		zap.Strings("failed_checks", decision.FailedChecks()),
		zap.Int("warnings", len(decision.Warnings)),
	)

	// Решение персистится (append) до возврата; сбой записи громко логируем,
	// но уже вычисленный результат вызывающему не подменяем
	if rec, recErr := runlog.NewRecord(runlog.KindGateDecision, accountID, decision); recErr != nil {
		log.Error("FAILED TO MARSHAL DECISION FOR AUDIT LOG", zap.Error(recErr))
	} else if appendErr := e.store.Append(ctx, rec); appendErr != nil {
		log.Error("FAILED TO PERSIST GATE DECISION", zap.Error(appendErr))
	}

	return decision, nil
}

func (e *Evaluator) checkIdempotency(v *domain.IdempotencyVerdict) domain.CheckResult {
	if v == nil {
		return domain.CheckResult{
			Passed:   false,
			Required: e.cfg.RequireIdempotencyTest,
			Details:  "no idempotency verdict found in run log",
		}
	}
	details := fmt.Sprintf("first run: %d mutation(s), second run: %d",
		v.FirstRun.MutationCount, v.SecondRun.MutationCount)
	if !v.Passed {
		return domain.CheckResult{
			Passed:   false,
			Required: e.cfg.RequireIdempotencyTest,
			Details:  "latest verdict FAILED — " + details,
		}
	}
	return domain.CheckResult{Passed: true, Required: e.cfg.RequireIdempotencyTest, Details: details}
}

func (e *Evaluator) checkRecency(v *domain.IdempotencyVerdict) domain.CheckResult {
	// Свежесть — обязательная проверка всегда, когда обязателен сам тест:
	// протухший PASS ничем не лучше отсутствующего
	if v == nil {
		return domain.CheckResult{
			Passed:   false,
			Required: e.cfg.RequireIdempotencyTest,
			Details:  "no verdict to assess freshness",
		}
	}
	age := time.Since(v.Timestamp)
	if age > e.cfg.MaxVerdictAge {
		return domain.CheckResult{
			Passed:   false,
			Required: e.cfg.RequireIdempotencyTest,
			Details: fmt.Sprintf("latest verdict is %s old, window is %s",
				age.Round(time.Minute), e.cfg.MaxVerdictAge),
		}
	}
	return domain.CheckResult{
		Passed:   true,
		Required: e.cfg.RequireIdempotencyTest,
		Details:  fmt.Sprintf("verdict age %s within %s window", age.Round(time.Second), e.cfg.MaxVerdictAge),
	}
}

// checkNoErrors — не было ли ошибок рутины после свежайшего вердикта.
func (e *Evaluator) checkNoErrors(ctx context.Context, accountID string, v *domain.IdempotencyVerdict) (domain.CheckResult, error) {
	recs, err := e.store.Recent(ctx, accountID, runlog.KindRunError, 10)
	if err != nil {
		return domain.CheckResult{}, err
	}

	var fresh int
	for _, rec := range recs {
		if v == nil || rec.Timestamp.After(v.Timestamp) {
			fresh++
		}
	}
	if fresh > 0 {
		return domain.CheckResult{
			Passed:   false,
			Required: true,
			Details:  fmt.Sprintf("%d run error(s) recorded since the latest verdict", fresh),
		}, nil
	}
	return domain.CheckResult{Passed: true, Required: true, Details: "no recent run errors"}, nil
}

// checkBackendGate — один синхронный запрос, без ретраев: единственный отказ
// достаточен, чтобы провалить проверку (fail-closed posture).
func (e *Evaluator) checkBackendGate(ctx context.Context, accountID string) (domain.CheckResult, []string) {
	required := e.cfg.RequireBackendValidation

	if e.backend == nil {
		res := domain.CheckResult{
			Passed:   false,
			Required: required,
			Details:  "backend gate not configured",
		}
		if !required {
			return res, []string{"backend gate status was not checked (not configured)"}
		}
		return res, nil
	}

	st, err := e.backend.GateStatus(ctx, accountID)
	if err != nil {
		// Недоступность — не crash: деградируем до сконфигурированной строгости
		e.logger.Warn("backend gate status unavailable", zap.Error(err))
		res := domain.CheckResult{
			Passed:   false,
			Required: required,
			Details:  fmt.Sprintf("backend unavailable: %v", err),
		}
		if !required {
			return res, []string{"backend gate status unavailable, check skipped (advisory)"}
		}
		return res, nil
	}

	if st.GateStatus != backend.GateOpen {
		return domain.CheckResult{
			Passed:   false,
			Required: required,
			Details:  fmt.Sprintf("backend reports gate %s", st.GateStatus),
		}, nil
	}

	var warns []string
	if !st.Promote {
		warns = append(warns, "backend gate is OPEN but promote flag is false")
	}
	return domain.CheckResult{
		Passed:   true,
		Required: required,
		Details:  fmt.Sprintf("backend gate OPEN (promote=%t, as of %s)", st.Promote, st.Timestamp.Format(time.RFC3339)),
	}, warns
}

// checkLabelGuard — сначала структурированное свидетельство guard_status,
// затем fallback на поиск маркеров в недавних записях. Оба пути advisory,
// пока оператор явно не включил RequireLabelGuard.
func (e *Evaluator) checkLabelGuard(ctx context.Context, accountID string) (domain.CheckResult, []string, error) {
	required := e.cfg.RequireLabelGuard

	recs, err := e.store.Recent(ctx, accountID, runlog.KindGuardStatus, 1)
	if err != nil {
		return domain.CheckResult{}, nil, err
	}

	if len(recs) > 0 {
		var status domain.GuardStatus
		if err := json.Unmarshal(recs[0].Payload, &status); err == nil {
			var warns []string
			if status.ReservedTermsConfigured == 0 {
				warns = append(warns, "no reserved-keyword protection evidence in the latest guard status")
			}
			if !status.LabelGuardActive {
				res := domain.CheckResult{
					Passed:   false,
					Required: required,
					Details:  "latest guard status reports label guard inactive",
				}
				if !required {
					warns = append(warns, "label guard inactive in the latest run (advisory)")
				}
				return res, warns, nil
			}
			return domain.CheckResult{
				Passed:   true,
				Required: required,
				Details: fmt.Sprintf("label guard active (reserved terms: %d, exclusions: %d)",
					status.ReservedTermsConfigured, status.ExclusionCount),
			}, warns, nil
		}
	}

	// Fallback: грепаем маркеры по свободному тексту недавних записей.
	// Заведомо best-effort — потому и advisory по умолчанию.
	all, err := e.store.Recent(ctx, accountID, "", markerScanDepth)
	if err != nil {
		return domain.CheckResult{}, nil, err
	}
	for _, rec := range all {
		if bytes.Contains(rec.Payload, []byte("LABEL_GUARD")) {
			return domain.CheckResult{
				Passed:   true,
				Required: required,
				Details:  "label guard marker found in recent log entries (fallback scan)",
			}, []string{"label guard evidence is marker-based, not structured"}, nil
		}
	}

	res := domain.CheckResult{
		Passed:   false,
		Required: required,
		Details:  "no label guard evidence in recent runs",
	}
	if !required {
		return res, []string{"no label guard evidence found (advisory)"}, nil
	}
	return res, nil, nil
}

// checkMutationLimits — план последнего прогона против потолка.
// Сравниваем FirstRun: на любом PASS второй прогон по определению пуст,
// так что реальный размер плана показывает именно первый прогон.
// Потолок включительно: count == max ещё проходит. Всё, что выше половины
// потолка, дополнительно поднимает warning.
func (e *Evaluator) checkMutationLimits(v *domain.IdempotencyVerdict) (domain.CheckResult, []string) {
	if v == nil {
		return domain.CheckResult{
			Passed:   false,
			Required: true,
			Details:  "no recent run data to compare against the mutation ceiling",
		}, nil
	}

	count := v.FirstRun.MutationCount
	max := e.cfg.MaxMutationsPerRun

	if count > max {
		return domain.CheckResult{
			Passed:   false,
			Required: true,
			Details:  fmt.Sprintf("planned %d mutation(s), ceiling is %d", count, max),
		}, nil
	}

	var warns []string
	if count > max/2 {
		warns = append(warns, fmt.Sprintf("planned mutations (%d) exceed half the ceiling (%d/2)", count, max))
	}
	return domain.CheckResult{
		Passed:   true,
		Required: true,
		Details:  fmt.Sprintf("planned %d mutation(s), ceiling %d", count, max),
	}, warns
}

func (e *Evaluator) buildDecision(accountID string, checks map[string]domain.CheckResult, warnings []string) *domain.GateDecision {
	canPromote := true
	failedRequired := 0
	for _, name := range domain.CheckOrder {
		c, ok := checks[name]
		if !ok {
			continue
		}
		if c.Required && !c.Passed {
			canPromote = false
			failedRequired++
		}
	}

	d := &domain.GateDecision{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		CanPromote: canPromote,
		Checks:     checks,
		Warnings:   warnings,
		Timestamp:  time.Now().UTC(),
	}

	if canPromote {
		d.Summary = "PROMOTE approved: all required safety checks passed."
	} else {
		d.Summary = fmt.Sprintf("PROMOTE blocked: %d required check(s) failed.", failedRequired)
	}
	d.Recommendations = buildRecommendations(d)
	return d
}

// buildRecommendations — детерминированный список: generic-пункты на любом
// провале + по одному адресному на каждую конкретную упавшую проверку.
func buildRecommendations(d *domain.GateDecision) []string {
	if d.CanPromote {
		return nil
	}

	recs := []string{
		"Re-run the idempotency test harness against the target account",
		"Review recent mutation plans in the run log",
		"Verify label, reserved-keyword and exclusion guard configuration",
	}

	targeted := map[string]string{
		domain.CheckIdempotencyTest:   "Check the automation for missing already-applied state detection or label guards",
		domain.CheckTestRecency:       "Run fresh idempotency tests before deployment",
		domain.CheckNoErrors:          "Inspect run_error records and fix the automation failure before retrying",
		domain.CheckBackendGate:       "Open the backend gate or verify backend availability and credentials",
		domain.CheckLabelGuard:        "Ensure the automation emits guard_status records with an active label guard",
		domain.CheckMutationLimits:    "Reduce the planned mutation batch or raise max_mutations_per_run deliberately",
		domain.CheckWarningsThreshold: "Resolve outstanding warnings before promoting",
	}
	for _, name := range domain.CheckOrder {
		if c, ok := d.Checks[name]; ok && !c.Passed {
			recs = append(recs, targeted[name])
		}
	}
	return recs
}
