package reconcile_worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/db/dbtest"
	"github.com/fatflowers/rentpay/pkg/clock"
)

var testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

type fakeReconciler struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (f *fakeReconciler) Reconcile(_ context.Context, id string) (*reconciliation.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return &reconciliation.Decision{TransactionID: id, Status: models.TransactionStatusMatched, Applied: true}, nil
}

func newWorker(t *testing.T, rec Reconciler) (*Worker, *gorm.DB, *clock.Fixed) {
	t.Helper()
	gdb := dbtest.Open(t)
	clk := clock.NewFixed(testNow)
	return New(gdb, zap.NewNop().Sugar(), clk, rec, Options{Interval: time.Second, BatchSize: 2, LockTTL: 30 * time.Second, MaxAttempts: 3}), gdb, clk
}

func seedJob(t *testing.T, gdb *gorm.DB, txnID string, nextRun time.Time) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, gdb.Create(&models.ReconcileJob{
		ID: id, TransactionID: txnID, OwnerID: "owner-1",
		Status: models.ReconcileJobStatusPending, NextRunAt: nextRun.UTC(),
	}).Error)
	return id
}

func job(t *testing.T, gdb *gorm.DB, id string) models.ReconcileJob {
	t.Helper()
	var j models.ReconcileJob
	require.NoError(t, gdb.Where("id = ?", id).First(&j).Error)
	return j
}

func TestProcessOnce_RunsDueJobsInBatches(t *testing.T) {
	rec := &fakeReconciler{}
	w, gdb, _ := newWorker(t, rec)
	a := seedJob(t, gdb, "txn-a", testNow.Add(-time.Minute))
	b := seedJob(t, gdb, "txn-b", testNow.Add(-time.Second))
	c := seedJob(t, gdb, "txn-c", testNow)
	later := seedJob(t, gdb, "txn-later", testNow.Add(time.Hour))

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []string{"txn-a", "txn-b", "txn-c"}, rec.calls)
	for _, id := range []string{a, b, c} {
		j := job(t, gdb, id)
		assert.Equal(t, models.ReconcileJobStatusDone, j.Status)
		assert.Nil(t, j.LockedAt)
		assert.Nil(t, j.LockedBy)
	}
	assert.Equal(t, models.ReconcileJobStatusPending, job(t, gdb, later).Status)
}

func TestProcessOnce_BacksOffThenFails(t *testing.T) {
	rec := &fakeReconciler{errs: map[string]error{"txn-a": errors.New("db hiccup")}}
	w, gdb, clk := newWorker(t, rec)
	id := seedJob(t, gdb, "txn-a", testNow)

	_, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	j := job(t, gdb, id)
	assert.Equal(t, models.ReconcileJobStatusPending, j.Status)
	assert.Equal(t, 1, j.Attempts)
	assert.Equal(t, "db hiccup", j.LastError)
	assert.True(t, testNow.Add(time.Second).Equal(j.NextRunAt))

	// not due yet
	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(time.Second)
	_, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	j = job(t, gdb, id)
	assert.Equal(t, 2, j.Attempts)
	assert.True(t, clk.Now().Add(4*time.Second).Equal(j.NextRunAt))

	clk.Advance(4 * time.Second)
	_, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	j = job(t, gdb, id)
	assert.Equal(t, 3, j.Attempts)
	assert.Equal(t, models.ReconcileJobStatusFailed, j.Status)
}

func TestProcessOnce_MissingTransactionFailsImmediately(t *testing.T) {
	rec := &fakeReconciler{errs: map[string]error{"gone": reconciliation.ErrTransactionNotFound}}
	w, gdb, _ := newWorker(t, rec)
	id := seedJob(t, gdb, "gone", testNow)

	_, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	j := job(t, gdb, id)
	assert.Equal(t, models.ReconcileJobStatusFailed, j.Status)
	assert.Equal(t, 1, j.Attempts)
}

func TestClaim_SkipsFreshLocksAndTakesStaleOnes(t *testing.T) {
	rec := &fakeReconciler{}
	w, gdb, _ := newWorker(t, rec)
	fresh := seedJob(t, gdb, "txn-fresh", testNow.Add(-time.Minute))
	stale := seedJob(t, gdb, "txn-stale", testNow.Add(-time.Minute))
	other := "other-worker"
	require.NoError(t, gdb.Model(&models.ReconcileJob{}).Where("id = ?", fresh).
		Updates(map[string]any{"locked_at": testNow.Add(-10 * time.Second), "locked_by": other}).Error)
	require.NoError(t, gdb.Model(&models.ReconcileJob{}).Where("id = ?", stale).
		Updates(map[string]any{"locked_at": testNow.Add(-time.Minute), "locked_by": other}).Error)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"txn-stale"}, rec.calls)
	assert.Equal(t, models.ReconcileJobStatusDone, job(t, gdb, stale).Status)
	assert.Equal(t, models.ReconcileJobStatusPending, job(t, gdb, fresh).Status)
}

func TestNotify_NeverBlocks(t *testing.T) {
	w, _, _ := newWorker(t, &fakeReconciler{})
	for i := 0; i < 10; i++ {
		w.Notify()
	}
	assert.Len(t, w.wake, 1)

	var nilWorker *Worker
	assert.NotPanics(t, nilWorker.Notify)
}

func TestRun_StopsOnCancel(t *testing.T) {
	rec := &fakeReconciler{}
	w, gdb, _ := newWorker(t, rec)
	seedJob(t, gdb, "txn-a", testNow)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.calls) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
