package automation

import (
	"context"
	"fmt"

	"github.com/xela07ax/proofkit-gate/internal/domain"
	"github.com/xela07ax/proofkit-gate/internal/executor"
	"github.com/xela07ax/proofkit-gate/internal/guard"
	"github.com/xela07ax/proofkit-gate/internal/session"
	"go.uber.org/zap"
)

// OwnershipLabel — метка "этой сущностью управляет автоматизация".
const OwnershipLabel = "PROOFKIT_MANAGED"

// MasterNegativeList — имя мастер-листа негативов, который ведёт рутина.
const MasterNegativeList = "proofkit_master"

// Routine — референс-реализация контракта Automation Routine: бюджетные
// потолки + мастер-негативы поверх fake-аккаунта. Боевая рутина живёт вне
// ядра; эта нужна harness-команде CLI и e2e-тестам.
//
// Контракт перед КАЖДОЙ мутацией:
//  1. Exclusion Guard — исключённые сущности пропускаем безусловно.
//  2. Reserved-Keyword Guard — негативные мутации с защищённым термом
//     ветируются в любом режиме.
//  3. Session.IsLive() — true: применить по-настоящему И записать в Recorder;
//     false: только записать план и залогировать причину.
type Routine struct {
	Account    *AccountState
	Exclusions guard.ExclusionMap
	Reserved   guard.ReservedTerms
	Executor   executor.Executor // Используется только на live-пути

	logger *zap.Logger
}

func NewRoutine(account *AccountState, exec executor.Executor, logger *zap.Logger) *Routine {
	return &Routine{
		Account:  account,
		Reserved: guard.DefaultReservedTerms,
		Executor: exec,
		logger:   logger.With(zap.String("mod", "automation")),
	}
}

// Run — один полный проход автоматизации.
func (r *Routine) Run(ctx context.Context, sess *session.Session) error {
	for _, c := range r.Account.Snapshot() {
		if r.Exclusions.CampaignExcluded(c.Name) {
			r.logger.Info("campaign excluded by operator map, skipping",
				zap.String("campaign", c.Name))
			continue
		}

		if err := r.ensureBudgetCap(ctx, sess, c); err != nil {
			return err
		}
		r.ensureOwnershipLabel(ctx, sess, c)
	}

	return r.ensureMasterNegatives(ctx, sess)
}

// ensureBudgetCap — решение о мутации принимается сравнением ТЕКУЩЕГО бюджета
// с целевым потолком. После реального применения бюджеты совпадут и повторный
// проход запланирует ноль мутаций — на этом свойстве стоит idempotency-тест.
func (r *Routine) ensureBudgetCap(ctx context.Context, sess *session.Session, c Campaign) error {
	if c.BudgetCap <= 0 || c.Budget <= c.BudgetCap {
		return nil
	}

	m := domain.NewBudgetChange(c.Name, c.Budget, c.BudgetCap)
	if sess.IsLive() {
		if err := r.Executor.Apply(ctx, m); err != nil {
			return fmt.Errorf("automation: apply budget change for %s: %w", c.Name, err)
		}
		sess.Record(m) // Запись строго в точке реального применения
		r.logger.Info("budget capped",
			zap.String("campaign", c.Name),
			zap.Float64("old", c.Budget), zap.Float64("new", c.BudgetCap))
		return nil
	}

	sess.Record(m)
	r.logger.Info(fmt.Sprintf("%s planned budget change", sess.PlannedReason()),
		zap.String("campaign", c.Name),
		zap.Float64("old", c.Budget), zap.Float64("new", c.BudgetCap))
	return nil
}

// ensureOwnershipLabel — label guard активен только на живом прогоне
// (в dry-run guard'ы принудительно неактивны, сущности не трогаем).
func (r *Routine) ensureOwnershipLabel(ctx context.Context, sess *session.Session, c Campaign) {
	if !sess.LabelGuardActive() {
		return
	}
	if guard.EnsureLabel(ctx, r.Account, c.Name, OwnershipLabel, r.logger) {
		sess.Record(domain.NewLabelApply(c.Name, OwnershipLabel))
	}
}

// GuardCounts — факты о настройке guard'ов для записи guard_status (harness.GuardReporter).
func (r *Routine) GuardCounts() (reservedTerms, exclusions int) {
	return len(r.Reserved), len(r.Exclusions)
}

func (r *Routine) ensureMasterNegatives(ctx context.Context, sess *session.Session) error {
	for _, term := range r.Account.WastedTerms {
		m := domain.NewMasterNegativeAdd(MasterNegativeList, term)
		// Безусловное вето защищённых термов для негативных мутаций —
		// до любых проверок режима
		if m.Type.IsNegativeStyle() && r.Reserved.Blocks(m.Term()) {
			r.logger.Warn("NEG_GUARD: reserved term blocked",
				zap.String("term", term))
			continue
		}
		if r.Account.HasNegative(MasterNegativeList, term) {
			continue
		}

		if sess.IsLive() {
			if err := r.Executor.Apply(ctx, m); err != nil {
				return fmt.Errorf("automation: add master negative %q: %w", term, err)
			}
			sess.Record(m)
			r.logger.Info("master negative added", zap.String("term", term))
			continue
		}

		sess.Record(m)
		r.logger.Info(fmt.Sprintf("%s planned master negative", sess.PlannedReason()),
			zap.String("term", term))
	}
	return nil
}
