package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/proofkit-gate/internal/domain"
	"github.com/xela07ax/proofkit-gate/internal/guard"
	"github.com/xela07ax/proofkit-gate/internal/harness"
	"github.com/xela07ax/proofkit-gate/internal/runlog"
	"github.com/xela07ax/proofkit-gate/internal/session"
	"go.uber.org/zap"
)

func testAccount() *AccountState {
	return &AccountState{
		Campaigns: []Campaign{
			{Name: "Campaign-A", Budget: 15.00, BudgetCap: 10.00},
			{Name: "Campaign-B", Budget: 5.00, BudgetCap: 10.00},
		},
		MasterNegatives: map[string][]string{},
		WastedTerms:     []string{"free stuff", "my brand shoes"},
	}
}

func newSession(t *testing.T, mode domain.RunMode, promote bool) *session.Session {
	t.Helper()
	sess := session.New("acc-1", zap.NewNop(), session.WithPromote(promote))
	require.NoError(t, sess.SetMode(context.Background(), mode))
	return sess
}

func TestRoutine_PlansBudgetChangeInPreview(t *testing.T) {
	account := testAccount()
	routine := NewRoutine(account, account, zap.NewNop())
	sess := newSession(t, domain.ModePreview, false)

	require.NoError(t, routine.Run(context.Background(), sess))

	snap := sess.Snapshot()
	var budgetChanges []domain.MutationRecord
	for _, m := range snap.Mutations {
		if m.Type == domain.MutationBudgetChange {
			budgetChanges = append(budgetChanges, m)
		}
	}
	require.Len(t, budgetChanges, 1, "only the over-cap campaign gets a budget change")
	assert.Equal(t, "Campaign-A", budgetChanges[0].Campaign())
	assert.Equal(t, 15.00, budgetChanges[0].Details["old"])
	assert.Equal(t, 10.00, budgetChanges[0].Details["new"])

	// PREVIEW ничего не применяет
	assert.Equal(t, 15.00, account.Snapshot()[0].Budget)
}

func TestRoutine_ReservedTermVetoIsModeIndependent(t *testing.T) {
	// "my brand shoes" содержит защищённый терм "brand": ноль живых и ноль
	// записанных мутаций этого терма в ЛЮБОМ режиме
	cases := []struct {
		name    string
		mode    domain.RunMode
		promote bool
	}{
		{"production promote=true", domain.ModeProduction, true},
		{"preview", domain.ModePreview, false},
		{"idempotency test", domain.ModeIdempotencyTest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			account := testAccount()
			routine := NewRoutine(account, account, zap.NewNop())
			routine.Reserved = guard.ReservedTerms{"brand"}
			sess := newSession(t, tc.mode, tc.promote)

			require.NoError(t, routine.Run(context.Background(), sess))

			for _, m := range sess.Snapshot().Mutations {
				assert.NotEqual(t, "my brand shoes", m.Term(), "reserved term must never be planned")
			}
			assert.False(t, account.HasNegative(MasterNegativeList, "my brand shoes"),
				"reserved term must never be applied")
		})
	}
}

func TestRoutine_ExclusionGuardPrecedence(t *testing.T) {
	account := testAccount()
	routine := NewRoutine(account, account, zap.NewNop())
	routine.Exclusions = guard.ExclusionMap{"Campaign-A": {Excluded: true}}

	h := harness.New(harness.NewMemoryLocker(), runlog.NewMemoryStore(), zap.NewNop(), nil)
	sess := session.New("acc-1", zap.NewNop())

	verdict, err := h.Run(context.Background(), sess, routine)
	require.NoError(t, err)

	for _, snap := range []domain.RunSnapshot{verdict.FirstRun, verdict.SecondRun} {
		for _, m := range snap.Mutations {
			assert.NotEqual(t, "Campaign-A", m.Campaign(),
				"excluded entity must never appear in any mutation record")
		}
	}
}

func TestRoutine_LiveRunAppliesAndRecords(t *testing.T) {
	account := testAccount()
	routine := NewRoutine(account, account, zap.NewNop())
	sess := newSession(t, domain.ModeProduction, true)

	require.NoError(t, routine.Run(context.Background(), sess))

	// Мутация реально применена...
	assert.Equal(t, 10.00, account.Snapshot()[0].Budget)
	assert.True(t, account.HasNegative(MasterNegativeList, "free stuff"))

	// ...и записана ровно один раз на логическую мутацию
	snap := sess.Snapshot()
	counts := map[domain.MutationType]int{}
	for _, m := range snap.Mutations {
		counts[m.Type]++
		assert.Equal(t, domain.ModeProduction, m.Mode)
	}
	assert.Equal(t, 1, counts[domain.MutationBudgetChange])
	assert.Equal(t, 1, counts[domain.MutationMasterNegativeAdd])
	// Label guard активен только на живом прогоне: кампании получают ownership label
	assert.Equal(t, 2, counts[domain.MutationLabelApply])
}

func TestRoutine_ProductionWithoutPromoteOnlyPlans(t *testing.T) {
	account := testAccount()
	routine := NewRoutine(account, account, zap.NewNop())
	sess := newSession(t, domain.ModeProduction, false)

	require.NoError(t, routine.Run(context.Background(), sess))

	assert.Equal(t, 15.00, account.Snapshot()[0].Budget, "no real effect without promote")
	assert.Greater(t, sess.Snapshot().MutationCount, 0, "plan is still recorded")
}

func TestHarness_PlanRepeatabilityScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("already converged state passes trivially", func(t *testing.T) {
		account := &AccountState{
			Campaigns:       []Campaign{{Name: "Campaign-A", Budget: 10.00, BudgetCap: 10.00}},
			MasterNegatives: map[string][]string{},
		}
		routine := NewRoutine(account, account, zap.NewNop())
		h := harness.New(harness.NewMemoryLocker(), runlog.NewMemoryStore(), zap.NewNop(), nil)

		verdict, err := h.Run(ctx, session.New("acc-1", zap.NewNop()), routine)
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
		assert.Equal(t, 0, verdict.FirstRun.MutationCount)
	})

	t.Run("unapplied plan is re-planned and fails", func(t *testing.T) {
		// Бюджет всё ещё над потолком на втором прогоне — рутина честно
		// перепланирует ту же мутацию, harness честно показывает FAIL
		account := &AccountState{
			Campaigns:       []Campaign{{Name: "Campaign-A", Budget: 15.00, BudgetCap: 10.00}},
			MasterNegatives: map[string][]string{},
		}
		routine := NewRoutine(account, account, zap.NewNop())
		h := harness.New(harness.NewMemoryLocker(), runlog.NewMemoryStore(), zap.NewNop(), nil)

		verdict, err := h.Run(ctx, session.New("acc-1", zap.NewNop()), routine)
		require.NoError(t, err)
		assert.False(t, verdict.Passed)
		require.Len(t, verdict.SecondRun.Mutations, 1)
		assert.Equal(t, domain.MutationBudgetChange, verdict.SecondRun.Mutations[0].Type)
	})

	t.Run("simulated application between runs converges", func(t *testing.T) {
		account := &AccountState{
			Campaigns:       []Campaign{{Name: "Campaign-A", Budget: 15.00, BudgetCap: 10.00}},
			MasterNegatives: map[string][]string{},
		}
		routine := NewRoutine(account, account, zap.NewNop())
		probe := NewConvergenceProbe(routine, account)
		h := harness.New(harness.NewMemoryLocker(), runlog.NewMemoryStore(), zap.NewNop(), nil)

		verdict, err := h.Run(ctx, session.New("acc-1", zap.NewNop()), probe)
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
		assert.Equal(t, 1, verdict.FirstRun.MutationCount)
		assert.Equal(t, 0, verdict.SecondRun.MutationCount)
		assert.Equal(t, 10.00, account.Snapshot()[0].Budget, "probe applied the plan to the fixture")
	})
}

func TestAccountState_ApplyUnknownEntities(t *testing.T) {
	account := testAccount()
	err := account.Apply(context.Background(), domain.NewBudgetChange("Nope", 1, 2))
	assert.Error(t, err)

	err = account.Apply(context.Background(), domain.MutationRecord{Type: domain.MutationRSACreate})
	assert.Error(t, err, "fixture account supports only a subset of mutation types")
}

func TestGuardCounts(t *testing.T) {
	account := testAccount()
	routine := NewRoutine(account, account, zap.NewNop())
	routine.Exclusions = guard.ExclusionMap{"Campaign-A": {Excluded: true}}

	reserved, exclusions := routine.GuardCounts()
	assert.Equal(t, len(guard.DefaultReservedTerms), reserved)
	assert.Equal(t, 1, exclusions)

	probe := NewConvergenceProbe(routine, account)
	pr, pe := probe.GuardCounts()
	assert.Equal(t, reserved, pr)
	assert.Equal(t, exclusions, pe)
}
