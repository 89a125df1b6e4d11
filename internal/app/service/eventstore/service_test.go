package eventstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/db/dbtest"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/types"
)

var testNow = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB, *observer.ObservedLogs) {
	t.Helper()
	db := dbtest.Open(t)
	core, logs := observer.New(zapcore.InfoLevel)
	return &Service{db: db, log: zap.New(core).Sugar(), clock: clock.NewFixed(testNow), loc: time.UTC}, db, logs
}

func input(receipt string, amount int64) *RecordInput {
	return &RecordInput{
		OwnerID:          "owner-1",
		ReceiptNumber:    receipt,
		Kind:             models.TransactionKindPaybill,
		Phone:            "254712345678",
		Amount:           decimal.NewFromInt(amount),
		AccountReference: "UNIT-A1",
		TransactionAt:    testNow,
		RawPayload:       []byte(`{"TransID":"` + receipt + `"}`),
		EnqueueReconcile: true,
	}
}

func TestRecord_NewThenReplay(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()

	txn, isNew, err := s.Record(ctx, input("QKJ1", 15000))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, models.TransactionStatusUnmatched, txn.Status)
	assert.Equal(t, 0, txn.Confidence)
	assert.Equal(t, "2024-03", txn.Cycle)

	again, isNew, err := s.Record(ctx, input("QKJ1", 15000))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, txn.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Where("receipt_number = ?", "QKJ1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var jobs int64
	require.NoError(t, db.Model(&models.ReconcileJob{}).Count(&jobs).Error)
	assert.Equal(t, int64(1), jobs, "replay must not enqueue again")
}

func TestRecord_ReplayNeverModifiesStoredRow(t *testing.T) {
	s, db, logs := newService(t)
	ctx := context.Background()

	txn, _, err := s.Record(ctx, input("QKJ2", 15000))
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Where("id = ?", txn.ID).
		Update("status", models.TransactionStatusMatched).Error)

	different := input("QKJ2", 999)
	stored, isNew, err := s.Record(ctx, different)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(15000)))
	assert.Equal(t, models.TransactionStatusMatched, stored.Status)
	assert.Equal(t, 1, logs.FilterMessage("receipt_collision").Len())
}

func TestRecord_RejectsInvalidInput(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()

	_, _, err := s.Record(ctx, input("  ", 100))
	assert.ErrorIs(t, err, ErrMissingReceipt)

	_, _, err = s.Record(ctx, input("QKJ3", 0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = s.Record(ctx, input("QKJ4", -5))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	noOwner := input("QKJ5", 100)
	noOwner.OwnerID = ""
	_, _, err = s.Record(ctx, noOwner)
	assert.ErrorIs(t, err, ErrMissingOwner)

	var count int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecord_ConcurrentDeliveriesStoreOneRow(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	newCount := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isNew, err := s.Record(ctx, input("QKJ6", 15000))
			assert.NoError(t, err)
			newCount <- isNew
		}()
	}
	wg.Wait()
	close(newCount)

	created := 0
	for isNew := range newCount {
		if isNew {
			created++
		}
	}
	assert.Equal(t, 1, created)

	var count int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListAndGet(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	for i, r := range []string{"R1", "R2", "R3"} {
		in := input(r, int64(1000*(i+1)))
		in.TransactionAt = testNow.Add(time.Duration(i) * time.Hour)
		_, _, err := s.Record(ctx, in)
		require.NoError(t, err)
	}
	other := input("R4", 500)
	other.OwnerID = "owner-2"
	_, _, err := s.Record(ctx, other)
	require.NoError(t, err)

	res, err := s.List(ctx, "owner-1", &types.ScanRequest{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "R3", res.Items[0].ReceiptNumber, "newest first")

	res, err = s.List(ctx, "owner-1", &types.ScanRequest{Filters: []*types.CommonFilter{
		{Field: "receipt_number", Operator: types.CommonFilterOperatorEq, Values: []any{"R2"}},
	}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	_, err = s.List(ctx, "owner-1", &types.ScanRequest{Filters: []*types.CommonFilter{
		{Field: "raw_payload", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}},
	}})
	assert.Error(t, err)

	got, err := s.Get(ctx, "owner-1", res.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "R2", got.ReceiptNumber)

	_, err = s.Get(ctx, "owner-2", res.Items[0].ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
