package runlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/proofkit-gate/internal/domain"
)

func mustRecord(t *testing.T, kind, account string, payload interface{}) Record {
	t.Helper()
	rec, err := NewRecord(kind, account, payload)
	require.NoError(t, err)
	return rec
}

func TestFileStore_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := mustRecord(t, KindIdempotencyVerdict, "acc-1", map[string]int{"n": i})
		rec.Timestamp = time.Date(2026, 8, 20+i, 12, 0, 0, 0, time.UTC)
		require.NoError(t, store.Append(ctx, rec))
	}
	require.NoError(t, store.Append(ctx, mustRecord(t, KindGateDecision, "acc-1", map[string]bool{"ok": true})))
	require.NoError(t, store.Append(ctx, mustRecord(t, KindIdempotencyVerdict, "acc-2", map[string]int{"n": 99})))

	t.Run("newest first with kind and account filter", func(t *testing.T) {
		recs, err := store.Recent(ctx, "acc-1", KindIdempotencyVerdict, 10)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		for i := 1; i < len(recs); i++ {
			assert.False(t, recs[i].Timestamp.After(recs[i-1].Timestamp), "records must be newest first")
		}
	})

	t.Run("limit respected", func(t *testing.T) {
		recs, err := store.Recent(ctx, "acc-1", KindIdempotencyVerdict, 1)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("empty kind matches all kinds", func(t *testing.T) {
		recs, err := store.Recent(ctx, "acc-1", "", 10)
		require.NoError(t, err)
		assert.Len(t, recs, 4)
	})
}

func TestFileStore_FileNamesCarrySortableTimestamp(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), mustRecord(t, KindGateDecision, "acc-1", struct{}{})))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	ts, ok := parseFileTS(entries[0].Name())
	require.True(t, ok, "file name must start with a parsable timestamp: %s", entries[0].Name())
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}

func TestFileStore_SkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "20260801T000000.000000000Z_gate_decision_junk.json"),
		[]byte("{not json"), 0o644))
	require.NoError(t, store.Append(context.Background(), mustRecord(t, KindGateDecision, "acc-1", struct{}{})))

	recs, err := store.Recent(context.Background(), "acc-1", KindGateDecision, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "corrupt file must be skipped, not fatal")
}

func TestLatestVerdict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("empty log", func(t *testing.T) {
		_, err := LatestVerdict(ctx, store, "acc-1")
		assert.ErrorIs(t, err, ErrNoVerdict)
	})

	t.Run("returns freshest", func(t *testing.T) {
		old := domain.IdempotencyVerdict{ID: "old", AccountID: "acc-1", Passed: false}
		fresh := domain.IdempotencyVerdict{ID: "fresh", AccountID: "acc-1", Passed: true}
		require.NoError(t, store.Append(ctx, mustRecord(t, KindIdempotencyVerdict, "acc-1", old)))
		require.NoError(t, store.Append(ctx, mustRecord(t, KindIdempotencyVerdict, "acc-1", fresh)))

		v, err := LatestVerdict(ctx, store, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, "fresh", v.ID)
		assert.True(t, v.Passed)
	})
}

func TestMemoryStore_FailAppend(t *testing.T) {
	store := NewMemoryStore()
	store.FailAppend = os.ErrPermission
	err := store.Append(context.Background(), Record{ID: "x"})
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 0, store.Len())
}
