package harness

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/proofkit-gate/internal/domain"
	"github.com/xela07ax/proofkit-gate/internal/runlog"
	"github.com/xela07ax/proofkit-gate/internal/session"
	"go.uber.org/zap"
)

// statefulRoutine — корректная рутина: "уже применённое" состояние детектится
// по внутреннему флагу, взведённому первым прогоном.
type statefulRoutine struct {
	applied bool
}

func (r *statefulRoutine) Run(_ context.Context, sess *session.Session) error {
	if !r.applied {
		sess.Record(domain.NewBudgetChange("Campaign-A", 15, 10))
		r.applied = true
	}
	return nil
}

// buggyRoutine — всегда планирует одну и ту же мутацию, не глядя на состояние.
type buggyRoutine struct{}

func (buggyRoutine) Run(_ context.Context, sess *session.Session) error {
	sess.Record(domain.NewBudgetChange("Campaign-A", 15, 10))
	return nil
}

// emptyRoutine — пустой внешний мир: мутаций нет вовсе.
type emptyRoutine struct{}

func (emptyRoutine) Run(context.Context, *session.Session) error { return nil }

// failingRoutine падает на заданном по счёту прогоне.
type failingRoutine struct {
	failOn int
	runs   int
}

func (r *failingRoutine) Run(_ context.Context, sess *session.Session) error {
	r.runs++
	if r.runs == r.failOn {
		return errors.New("platform exploded")
	}
	sess.Record(domain.NewBudgetChange("Campaign-A", 15, 10))
	return nil
}

func newHarness(store runlog.Store) *Harness {
	return New(NewMemoryLocker(), store, zap.NewNop(), nil)
}

func TestRun_PassWhenSecondRunPlansNothing(t *testing.T) {
	store := runlog.NewMemoryStore()
	sess := session.New("acc-1", zap.NewNop())

	verdict, err := newHarness(store).Run(context.Background(), sess, &statefulRoutine{})
	require.NoError(t, err)

	assert.True(t, verdict.Passed)
	assert.Equal(t, 1, verdict.FirstRun.MutationCount)
	assert.Equal(t, 0, verdict.SecondRun.MutationCount)
	assert.Equal(t, domain.ModePreview, verdict.FirstRun.Mode)
	assert.Equal(t, "acc-1", verdict.AccountID)
	assert.NotEmpty(t, verdict.ID)
}

func TestRun_FailListsUnexpectedSecondRunMutations(t *testing.T) {
	store := runlog.NewMemoryStore()
	sess := session.New("acc-1", zap.NewNop())

	verdict, err := newHarness(store).Run(context.Background(), sess, buggyRoutine{})
	require.NoError(t, err, "a FAIL verdict is a valid outcome, not an error")

	assert.False(t, verdict.Passed)
	require.Len(t, verdict.SecondRun.Mutations, 1)
	m := verdict.SecondRun.Mutations[0]
	assert.Equal(t, domain.MutationBudgetChange, m.Type)
	assert.Equal(t, "Campaign-A", m.Campaign())
}

func TestRun_EmptyStateTriviallyPasses(t *testing.T) {
	store := runlog.NewMemoryStore()
	sess := session.New("acc-1", zap.NewNop())

	verdict, err := newHarness(store).Run(context.Background(), sess, emptyRoutine{})
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, 0, verdict.FirstRun.MutationCount)
}

func TestRun_RestoresProductionMode(t *testing.T) {
	for _, routine := range []Routine{&statefulRoutine{}, buggyRoutine{}} {
		sess := session.New("acc-1", zap.NewNop())
		_, err := newHarness(runlog.NewMemoryStore()).Run(context.Background(), sess, routine)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeProduction, sess.Mode())
	}

	// И после ошибки рутины режим тоже восстановлен
	sess := session.New("acc-1", zap.NewNop())
	_, err := newHarness(runlog.NewMemoryStore()).Run(context.Background(), sess, &failingRoutine{failOn: 1})
	require.Error(t, err)
	assert.Equal(t, domain.ModeProduction, sess.Mode())
}

func TestRun_FirstRunErrorAbortsWithoutVerdict(t *testing.T) {
	store := runlog.NewMemoryStore()
	sess := session.New("acc-1", zap.NewNop())

	verdict, err := newHarness(store).Run(context.Background(), sess, &failingRoutine{failOn: 1})
	require.Error(t, err)
	assert.Nil(t, verdict)

	// Вердикта нет, но run_error маркер записан
	recs, rErr := store.Recent(context.Background(), "acc-1", runlog.KindIdempotencyVerdict, 10)
	require.NoError(t, rErr)
	assert.Empty(t, recs, "no partial verdict must be persisted")

	errs, rErr := store.Recent(context.Background(), "acc-1", runlog.KindRunError, 10)
	require.NoError(t, rErr)
	require.Len(t, errs, 1)

	var re domain.RunError
	require.NoError(t, json.Unmarshal(errs[0].Payload, &re))
	assert.Equal(t, "first_run", re.Stage)
}

func TestRun_SecondRunErrorAbortsWithoutVerdict(t *testing.T) {
	store := runlog.NewMemoryStore()
	sess := session.New("acc-1", zap.NewNop())

	verdict, err := newHarness(store).Run(context.Background(), sess, &failingRoutine{failOn: 2})
	require.Error(t, err)
	assert.Nil(t, verdict)

	errs, rErr := store.Recent(context.Background(), "acc-1", runlog.KindRunError, 10)
	require.NoError(t, rErr)
	require.Len(t, errs, 1)

	var re domain.RunError
	require.NoError(t, json.Unmarshal(errs[0].Payload, &re))
	assert.Equal(t, "second_run", re.Stage)
}

func TestRun_PersistFailureDoesNotMaskVerdict(t *testing.T) {
	store := runlog.NewMemoryStore()
	store.FailAppend = errors.New("disk full")
	sess := session.New("acc-1", zap.NewNop())

	verdict, err := newHarness(store).Run(context.Background(), sess, &statefulRoutine{})
	require.Error(t, err, "persistence failure is surfaced")
	require.NotNil(t, verdict, "but the computed verdict is still returned")
	assert.True(t, verdict.Passed)
}

func TestRun_PersistsVerdictAndGuardStatus(t *testing.T) {
	ctx := context.Background()
	store := runlog.NewMemoryStore()
	sess := session.New("acc-1", zap.NewNop(), session.WithPromote(true))

	_, err := newHarness(store).Run(ctx, sess, &statefulRoutine{})
	require.NoError(t, err)

	verdicts, err := store.Recent(ctx, "acc-1", runlog.KindIdempotencyVerdict, 10)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)

	statuses, err := store.Recent(ctx, "acc-1", runlog.KindGuardStatus, 10)
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	var gs domain.GuardStatus
	require.NoError(t, json.Unmarshal(statuses[0].Payload, &gs))
	// Режим восстановлен, promote=true — guard будет активен на живом прогоне
	assert.True(t, gs.LabelGuardActive)
	assert.Equal(t, domain.ModeProduction, gs.Mode)
}

func TestRun_SerializedPerAccount(t *testing.T) {
	locker := NewMemoryLocker()

	release, err := locker.Acquire(context.Background(), "acc-1")
	require.NoError(t, err)

	h := New(locker, runlog.NewMemoryStore(), zap.NewNop(), nil)
	sess := session.New("acc-1", zap.NewNop())
	_, err = h.Run(context.Background(), sess, emptyRoutine{})
	assert.ErrorIs(t, err, ErrLocked)

	// Другой аккаунт не блокируется
	other := session.New("acc-2", zap.NewNop())
	_, err = h.Run(context.Background(), other, emptyRoutine{})
	assert.NoError(t, err)

	release()
	_, err = h.Run(context.Background(), sess, emptyRoutine{})
	assert.NoError(t, err)
}
