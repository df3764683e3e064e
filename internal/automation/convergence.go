package automation

import (
	"context"

	"github.com/xela07ax/proofkit-gate/internal/domain"
	"github.com/xela07ax/proofkit-gate/internal/session"
)

// ConvergenceProbe оборачивает рутину для сценария "применить план между
// прогонами": перед вторым прогоном harness'а план первого применяется к
// fake-состоянию аккаунта. Так проверяется сходимость (применённый план
// больше не планируется), а не только повторяемость плана. Использовать
// только с фикстурным аккаунтом — к живой платформе это неприменимо.
type ConvergenceProbe struct {
	inner    *Routine
	account  *AccountState
	runs     int
	lastPlan []domain.MutationRecord
}

func NewConvergenceProbe(inner *Routine, account *AccountState) *ConvergenceProbe {
	return &ConvergenceProbe{inner: inner, account: account}
}

func (p *ConvergenceProbe) Run(ctx context.Context, sess *session.Session) error {
	p.runs++
	if p.runs > 1 {
		for _, m := range p.lastPlan {
			if err := p.account.Apply(ctx, m); err != nil {
				return err
			}
		}
	}

	if err := p.inner.Run(ctx, sess); err != nil {
		return err
	}
	p.lastPlan = sess.Snapshot().Mutations
	return nil
}

// GuardCounts делегирует внутренней рутине (harness.GuardReporter).
func (p *ConvergenceProbe) GuardCounts() (reservedTerms, exclusions int) {
	return p.inner.GuardCounts()
}
