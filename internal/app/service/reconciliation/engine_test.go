package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/db/dbtest"
	"github.com/fatflowers/rentpay/pkg/clock"
)

var testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

const owner = "owner-1"

type dbCanceller struct {
	err   error
	calls int
}

func (c *dbCanceller) CancelPending(ctx context.Context, tx *gorm.DB, tenantID, cycle, reason string) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	r := tx.WithContext(ctx).Model(&models.ReminderInstance{}).
		Where("tenant_id = ? AND cycle = ? AND status = ?", tenantID, cycle, models.ReminderStatusPending).
		Updates(map[string]any{"status": models.ReminderStatusCancelled, "failure_reason": reason})
	return r.RowsAffected, r.Error
}

func defaultOptions() Options {
	return Options{
		AutoMatchThreshold:     70,
		PaidRatio:              0.95,
		DuplicateWindow:        time.Hour,
		NameSimilarityMin:      0.6,
		DefaultReferenceFormat: "UNIT-{unit_number}",
	}
}

func newEngine(t *testing.T, opts Options) (*Engine, *gorm.DB, *dbCanceller, *observer.ObservedLogs) {
	t.Helper()
	db := dbtest.Open(t)
	core, logs := observer.New(zapcore.InfoLevel)
	c := &dbCanceller{}
	e := NewEngine(db, zap.New(core).Sugar(), clock.NewFixed(testNow), directory.New(db), c, nil, opts)
	return e, db, c, logs
}

func seedA12(t *testing.T, db *gorm.DB) {
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{
		OwnerID: owner, TenantID: "t-a12", UnitID: "u-a12", UnitNumber: "A12",
		Name: "Jane Wanjiku", Phone: "0799000111", Rent: 25000, DueDay: 5,
	})
}

func seedTxn(t *testing.T, db *gorm.DB, receipt, phone string, amount int64, ref string, at time.Time) *models.PaymentTransaction {
	t.Helper()
	txn := &models.PaymentTransaction{
		ID:               uuid.NewString(),
		OwnerID:          owner,
		ReceiptNumber:    receipt,
		Kind:             models.TransactionKindPaybill,
		PhoneNumber:      phone,
		Amount:           decimal.NewFromInt(amount),
		AccountReference: ref,
		TransactionAt:    at.UTC(),
		Cycle:            at.Format("2006-01"),
		Status:           models.TransactionStatusUnmatched,
	}
	require.NoError(t, db.Create(txn).Error)
	return txn
}

func seedReminder(t *testing.T, db *gorm.DB, tenantID string, kind models.ReminderKind, cycle string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, db.Create(&models.ReminderInstance{
		ID: id, OwnerID: owner, TenantID: tenantID, Kind: kind,
		DedupKey: tenantID + ":" + string(kind) + ":" + cycle, Channel: models.ReminderChannelSMS,
		Status: models.ReminderStatusPending, ScheduledFor: testNow.UTC(), Cycle: cycle,
	}).Error)
	return id
}

func reminderStatus(t *testing.T, db *gorm.DB, id string) models.ReminderStatus {
	t.Helper()
	var r models.ReminderInstance
	require.NoError(t, db.Where("id = ?", id).First(&r).Error)
	return r.Status
}

func logsFor(t *testing.T, db *gorm.DB, txnID string) []models.ReconciliationLog {
	t.Helper()
	var out []models.ReconciliationLog
	require.NoError(t, db.Where("transaction_id = ?", txnID).Order("created_at, id").Find(&out).Error)
	return out
}

func reload(t *testing.T, db *gorm.DB, id string) models.PaymentTransaction {
	t.Helper()
	var txn models.PaymentTransaction
	require.NoError(t, db.Where("id = ?", id).First(&txn).Error)
	return txn
}

func TestReconcile_UnitMatchCancelsCycleReminders(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	preDue := seedReminder(t, db, "t-a12", models.ReminderKindPreDue, "2024-03")
	dueToday := seedReminder(t, db, "t-a12", models.ReminderKindDueToday, "2024-03")
	nextCycle := seedReminder(t, db, "t-a12", models.ReminderKindPreDue, "2024-04")
	txn := seedTxn(t, db, "QWE123", "254712345678", 25000, "UNIT-A12", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.True(t, d.Applied)
	assert.Equal(t, models.TransactionStatusMatched, d.Status)
	assert.Equal(t, 95, d.Confidence)
	assert.Equal(t, "t-a12", d.TenantID)
	assert.Equal(t, int64(2), d.Cancelled)

	got := reload(t, db, txn.ID)
	assert.Equal(t, models.TransactionStatusMatched, got.Status)
	assert.Equal(t, 95, got.Confidence)
	require.NotNil(t, got.TenantID)
	assert.Equal(t, "t-a12", *got.TenantID)
	require.NotNil(t, got.UnitID)
	assert.Equal(t, "u-a12", *got.UnitID)
	require.NotNil(t, got.MatchedPaymentID)

	var ledger models.RentPayment
	require.NoError(t, db.Where("reference = ?", "QWE123").First(&ledger).Error)
	assert.Equal(t, *got.MatchedPaymentID, ledger.ID)
	assert.True(t, ledger.Amount.Equal(decimal.NewFromInt(25000)))
	assert.Equal(t, "2024-03", ledger.Cycle)

	logs := logsFor(t, db, txn.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ReconciliationActionAutoMatched, logs[0].Action)
	assert.Equal(t, models.TransactionStatusUnmatched, logs[0].StatusBefore)
	assert.Equal(t, models.TransactionStatusMatched, logs[0].StatusAfter)
	assert.Equal(t, 95, logs[0].Confidence)
	assert.Equal(t, models.PerformedBySystem, logs[0].PerformedBy)

	assert.Equal(t, models.ReminderStatusCancelled, reminderStatus(t, db, preDue))
	assert.Equal(t, models.ReminderStatusCancelled, reminderStatus(t, db, dueToday))
	assert.Equal(t, models.ReminderStatusPending, reminderStatus(t, db, nextCycle))
}

func TestReconcile_PartialKeepsConfidenceAndReminders(t *testing.T) {
	e, db, c, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	dueToday := seedReminder(t, db, "t-a12", models.ReminderKindDueToday, "2024-03")
	txn := seedTxn(t, db, "QWE124", "254712345678", 12000, "UNIT-A12", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.True(t, d.Applied)
	assert.Equal(t, models.TransactionStatusPartial, d.Status)
	assert.Equal(t, 95, d.Confidence)
	assert.Zero(t, d.Cancelled)
	assert.Zero(t, c.calls)
	assert.Equal(t, models.ReminderStatusPending, reminderStatus(t, db, dueToday))

	logs := logsFor(t, db, txn.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.TransactionStatusPartial, logs[0].StatusAfter)

	// a second instalment that settles the cycle cancels
	second := seedTxn(t, db, "QWE125", "254712345678", 13000, "UNIT-A12", testNow.Add(2*time.Hour))
	d, err = e.Reconcile(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPartial, d.Status, "amount alone is below rent")
	assert.Equal(t, int64(1), d.Cancelled)
	assert.Equal(t, models.ReminderStatusCancelled, reminderStatus(t, db, dueToday))
}

func TestReconcile_PaidRatioBoundary(t *testing.T) {
	tests := []struct {
		amount int64
		want   models.TransactionStatus
	}{
		{amount: 23750, want: models.TransactionStatusMatched},
		{amount: 23749, want: models.TransactionStatusPartial},
		{amount: 30000, want: models.TransactionStatusMatched},
	}
	for _, tt := range tests {
		t.Run(decimal.NewFromInt(tt.amount).String(), func(t *testing.T) {
			e, db, _, _ := newEngine(t, defaultOptions())
			seedA12(t, db)
			txn := seedTxn(t, db, "R1", "254700000001", tt.amount, "UNIT-A12", testNow)
			d, err := e.Reconcile(context.Background(), txn.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Status)
		})
	}
}

func TestReconcile_ThresholdIsInclusive(t *testing.T) {
	for _, tt := range []struct {
		name      string
		threshold int
		applied   bool
	}{{"at threshold", 85, true}, {"above score", 86, false}} {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.AutoMatchThreshold = tt.threshold
			e, db, _, _ := newEngine(t, opts)
			seedA12(t, db)
			// phone only: the reference names no unit
			txn := seedTxn(t, db, "P1", "254799000111", 25000, "rent march", testNow)

			d, err := e.Reconcile(context.Background(), txn.ID)
			require.NoError(t, err)
			assert.Equal(t, 85, d.Confidence)
			assert.Equal(t, tt.applied, d.Applied)
			if !tt.applied {
				assert.Equal(t, "below threshold", d.Reason)
				assert.Equal(t, models.TransactionStatusUnmatched, reload(t, db, txn.ID).Status)
				assert.Empty(t, logsFor(t, db, txn.ID))
			}
		})
	}
}

func TestReconcile_TieIsNeverAutoMatched(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{OwnerID: owner, TenantID: "t-1", PropertyID: "p-1", UnitID: "u-1", UnitNumber: "B1", Name: "Alice", Phone: "0711000001", Rent: 10000})
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{OwnerID: owner, TenantID: "t-2", PropertyID: "p-2", UnitID: "u-2", UnitNumber: "B1", Name: "Brian", Phone: "0711000002", Rent: 10000})
	txn := seedTxn(t, db, "T1", "254799999999", 10000, "UNIT-B1", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.False(t, d.Applied)
	assert.Equal(t, "ambiguous top candidates", d.Reason)
	assert.Len(t, d.Candidates, 2)
	assert.Equal(t, models.TransactionStatusUnmatched, reload(t, db, txn.ID).Status)
	assert.Empty(t, logsFor(t, db, txn.ID))
}

func TestReconcile_NoCandidate(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	txn := seedTxn(t, db, "N1", "254700000009", 25000, "UNIT-Z9", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.False(t, d.Applied)
	assert.Equal(t, "no candidate", d.Reason)
	assert.Equal(t, models.TransactionStatusUnmatched, d.Status)
}

func TestReconcile_FlagsDuplicateWithinWindow(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	first := seedTxn(t, db, "D1", "254712345678", 25000, "UNIT-A12", testNow)
	second := seedTxn(t, db, "D2", "254712345678", 25000, "UNIT-A12", testNow.Add(10*time.Minute))
	outside := seedTxn(t, db, "D3", "254712345678", 25000, "UNIT-A12", testNow.Add(3*time.Hour))

	d, err := e.Reconcile(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusDuplicate, d.Status)
	logs := logsFor(t, db, second.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ReconciliationActionFlagged, logs[0].Action)
	assert.Contains(t, logs[0].Reason, "D1")

	d, err = e.Reconcile(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusMatched, d.Status)

	d, err = e.Reconcile(context.Background(), outside.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.TransactionStatusDuplicate, d.Status)
}

func TestReconcile_OnlyUnmatchedIsConsidered(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	txn := seedTxn(t, db, "M1", "254712345678", 25000, "UNIT-A12", testNow)
	_, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.False(t, d.Applied)
	assert.Equal(t, "not unmatched", d.Reason)
	assert.Len(t, logsFor(t, db, txn.ID), 1)

	_, err = e.Reconcile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestReconcile_CancelFailureRollsBackMatch(t *testing.T) {
	e, db, c, _ := newEngine(t, defaultOptions())
	c.err = errors.New("reminder store down")
	seedA12(t, db)
	txn := seedTxn(t, db, "F1", "254712345678", 25000, "UNIT-A12", testNow)

	_, err := e.Reconcile(context.Background(), txn.ID)
	require.Error(t, err)

	assert.Equal(t, models.TransactionStatusUnmatched, reload(t, db, txn.ID).Status)
	assert.Empty(t, logsFor(t, db, txn.ID))
	var n int64
	require.NoError(t, db.Model(&models.RentPayment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestReconcile_UsesOwnerReferenceFormat(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	require.NoError(t, db.Create(&models.PaymentConfig{
		ID: uuid.NewString(), OwnerID: owner, Shortcode: "600000", ShortcodeType: models.ShortcodeTypePaybill,
		AccountReferenceFormat: "{unit_number}/{tenant_name}", IsActive: true, Environment: models.ProviderEnvironmentSandbox,
	}).Error)
	txn := seedTxn(t, db, "O1", "254700000001", 25000, "a12/jane", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusMatched, d.Status)
	assert.Equal(t, 95, d.Confidence)
}

func TestReconcile_CreditsNextCycleOnceCurrentIsPaid(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	dbtest.SeedPayment(t, db, owner, "t-a12", "2024-03", "MAR1", 25000)
	preDue := seedReminder(t, db, "t-a12", models.ReminderKindPreDue, "2024-04")
	txn := seedTxn(t, db, "APR1", "254712345678", 25000, "UNIT-A12", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusMatched, d.Status)
	assert.Equal(t, "2024-04", d.Cycle)
	assert.Equal(t, int64(1), d.Cancelled)
	assert.Equal(t, models.ReminderStatusCancelled, reminderStatus(t, db, preDue))

	var ledger models.RentPayment
	require.NoError(t, db.Where("reference = ?", "APR1").First(&ledger).Error)
	assert.Equal(t, "2024-04", ledger.Cycle)
	assert.Equal(t, "2024-03", reload(t, db, txn.ID).Cycle, "the transaction keeps the month it was paid in")
}

func TestReconcile_CreditsChasedArrearsFirst(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	dbtest.SeedPayment(t, db, owner, "t-a12", "2024-03", "MAR1", 25000)
	arrears := seedReminder(t, db, "t-a12", models.ReminderKindDay14, "2024-02")
	txn := seedTxn(t, db, "FEB1", "254712345678", 25000, "UNIT-A12", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02", d.Cycle)
	assert.Equal(t, int64(1), d.Cancelled)
	assert.Equal(t, models.ReminderStatusCancelled, reminderStatus(t, db, arrears))
}

func TestReconcile_UnchasedPreviousMonthIsNotArrears(t *testing.T) {
	e, db, _, _ := newEngine(t, defaultOptions())
	seedA12(t, db)
	txn := seedTxn(t, db, "MAR2", "254712345678", 25000, "UNIT-A12", testNow)

	d, err := e.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03", d.Cycle)
}
