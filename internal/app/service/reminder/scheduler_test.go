package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/db/dbtest"
	"github.com/fatflowers/rentpay/internal/platform/lock"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/types"
)

// 2024-03-07 is due_today for tenants due on the 7th.
var testNow = time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)

const owner = "owner-1"

type fakeDispatcher struct {
	db    *gorm.DB
	calls []string
	fail  string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, id string) (bool, error) {
	f.calls = append(f.calls, id)
	update := map[string]any{"status": models.ReminderStatusSent, "external_ref": "ref-" + id}
	if f.fail != "" {
		update = map[string]any{"status": models.ReminderStatusFailed, "failure_reason": f.fail}
	}
	r := f.db.WithContext(ctx).Model(&models.ReminderInstance{}).
		Where("id = ? AND status = ?", id, models.ReminderStatusPending).Updates(update)
	return r.RowsAffected > 0 && f.fail == "", r.Error
}

func newService(t *testing.T) (*Service, *gorm.DB, *fakeDispatcher) {
	t.Helper()
	db := dbtest.Open(t)
	core, _ := observer.New(zapcore.InfoLevel)
	d := &fakeDispatcher{db: db}
	s := New(db, zap.New(core).Sugar(), clock.NewFixed(testNow), time.UTC, directory.New(db), lock.NewLocalLocker(), d, Options{
		PaidRatio:              0.95,
		LateFeeRatio:           0.05,
		CompanyName:            "Acme Homes",
		DefaultLeadDays:        3,
		DefaultReferenceFormat: "UNIT-{unit_number}",
	})
	return s, db, d
}

func seedJane(t *testing.T, db *gorm.DB, dueDay int) *models.Tenant {
	return dbtest.SeedTenant(t, db, dbtest.TenantFixture{
		OwnerID: owner, TenantID: "t-jane", UnitID: "u-a1", UnitNumber: "A1",
		Name: "Jane Wanjiku", Phone: "0712345678", Rent: 15000, DueDay: dueDay,
	})
}

func instances(t *testing.T, db *gorm.DB) []models.ReminderInstance {
	t.Helper()
	var out []models.ReminderInstance
	require.NoError(t, db.Order("cycle, kind").Find(&out).Error)
	return out
}

func TestSweep_TwiceInSameTickCreatesOneInstance(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)
	dbtest.SeedPayment(t, db, owner, "t-jane", "2024-02", "FEB1", 15000)

	first, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)

	got := instances(t, db)
	require.Len(t, got, 1)
	assert.Equal(t, models.ReminderKindDueToday, got[0].Kind)
	assert.Equal(t, "2024-03", got[0].Cycle)
	assert.Equal(t, "t-jane:due_today:2024-03", got[0].DedupKey)
	assert.Equal(t, models.ReminderStatusPending, got[0].Status)
	assert.Equal(t, models.ReminderChannelSMS, got[0].Channel)
	assert.True(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC).Equal(got[0].ScheduledFor))
}

func TestSweep_UnpaidPreviousCycleGetsItsOwnRung(t *testing.T) {
	s, db, _ := newService(t)
	seedJane(t, db, 7)

	res, err := s.Sweep(context.Background(), owner, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	got := instances(t, db)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-02", got[0].Cycle)
	assert.Equal(t, models.ReminderKindDay14, got[0].Kind)
	assert.Equal(t, "2024-03", got[1].Cycle)
	assert.Equal(t, models.ReminderKindDueToday, got[1].Kind)
}

func TestSweep_MessageUsesOwnerSettings(t *testing.T) {
	s, db, _ := newService(t)
	seedJane(t, db, 7)
	dbtest.SeedPayment(t, db, owner, "t-jane", "2024-02", "FEB1", 15000)
	require.NoError(t, db.Create(&models.PaymentConfig{
		ID: "cfg-1", OwnerID: owner, Shortcode: "174379", ShortcodeType: models.ShortcodeTypePaybill,
		AccountReferenceFormat: "RENT-{unit_number}", IsActive: true, Environment: models.ProviderEnvironmentSandbox,
	}).Error)

	_, err := s.Sweep(context.Background(), owner, testNow)
	require.NoError(t, err)

	got := instances(t, db)
	require.Len(t, got, 1)
	assert.Equal(t,
		"Hi Jane, your rent of KES 15000 for A1 is due today. Pay via M-Pesa Paybill 174379, Account: RENT-A1. - Acme Homes",
		got[0].Message)
}

func TestSweep_SkipsSettledDisabledAndPhoneless(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{OwnerID: owner, TenantID: "t-paid", Name: "Paid Up", Phone: "0722000000", Rent: 10000, DueDay: 7})
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{OwnerID: owner, TenantID: "t-nophone", Name: "No Phone", Rent: 10000, DueDay: 7})
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{OwnerID: owner, TenantID: "t-gone", Name: "Moved Out", Phone: "0733000000", Rent: 10000, DueDay: 7, Inactive: true})
	for _, id := range []string{"t-jane", "t-paid"} {
		dbtest.SeedPayment(t, db, owner, id, "2024-02", "FEB-"+id, 15000)
	}
	// 95% of rent counts as paid
	dbtest.SeedPayment(t, db, owner, "t-paid", "2024-03", "MAR-paid", 9500)

	res, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 3, res.SkippedSettled, "jane and paid-up in february, paid-up in march")

	_, err = s.UpdateRule(ctx, owner, RuleUpdate{Enabled: map[models.ReminderKind]bool{models.ReminderKindDay1: false}})
	require.NoError(t, err)
	res, err = s.Sweep(ctx, owner, testNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created, "day_1 is disabled")
}

func TestSweep_InactiveRule(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)
	off := false
	_, err := s.UpdateRule(ctx, owner, RuleUpdate{IsActive: &off})
	require.NoError(t, err)

	res, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Empty(t, instances(t, db))
}

func TestSweepAll_SkipsLockedOwner(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{OwnerID: "owner-2", TenantID: "t-other", Name: "Other", Phone: "0722000000", Rent: 5000, DueDay: 7})

	unlock, ok, err := s.locker.TryLock(ctx, "reminder:sweep:owner-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	res, err := s.SweepAll(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, res.Owners, 1)
	assert.Equal(t, owner, res.Owners[0].OwnerID)
	assert.Equal(t, []string{"owner-2"}, res.Skipped)
}

func TestSweepOwner_Busy(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)

	unlock, ok, err := s.locker.TryLock(ctx, "reminder:sweep:"+owner, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = s.SweepOwner(ctx, owner, testNow)
	assert.ErrorIs(t, err, ErrSweepBusy)
	unlock()

	res, err := s.SweepOwner(ctx, owner, testNow)
	require.NoError(t, err)
	assert.Positive(t, res.Created)
}

func TestCancelPending_OnlyTouchesPending(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)
	_, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.ReminderInstance{}).Where("cycle = ?", "2024-02").
		Update("status", models.ReminderStatusSent).Error)

	n, err := s.CancelPending(ctx, nil, "t-jane", "2024-03", "payment_reconciled")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got := instances(t, db)
	require.Len(t, got, 2)
	assert.Equal(t, models.ReminderStatusSent, got[0].Status)
	assert.Equal(t, models.ReminderStatusCancelled, got[1].Status)
	assert.Equal(t, "payment_reconciled", got[1].FailureReason)

	// a cancelled rung is not recreated by a later sweep
	res, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
}

func TestCancelPending_RollsBackWithCallerTransaction(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)
	dbtest.SeedPayment(t, db, owner, "t-jane", "2024-02", "FEB1", 15000)
	_, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		n, err := s.CancelPending(ctx, tx, "t-jane", "2024-03", "payment_reconciled")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)
	assert.Equal(t, models.ReminderStatusPending, instances(t, db)[0].Status)
}

func TestRules_GetOrCreateAndPartialUpdate(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	a, err := s.GetOrCreateRule(ctx, owner)
	require.NoError(t, err)
	b, err := s.GetOrCreateRule(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, a.IsActive)
	assert.Equal(t, 3, a.PreDueDays)

	lead := 5
	updated, err := s.UpdateRule(ctx, owner, RuleUpdate{
		PreDueDays: &lead,
		Channels:   map[models.ReminderKind]models.ReminderChannel{models.ReminderKindDay7: models.ReminderChannelWhatsApp},
		Templates:  map[models.ReminderKind]string{models.ReminderKindPreDue: "Pay {amount}"},
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, updated.ID)
	assert.True(t, updated.IsActive)

	reloaded, err := s.GetOrCreateRule(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.PreDueDays)
	assert.Equal(t, models.ReminderChannelWhatsApp, channelFor(reloaded, models.ReminderKindDay7))
	assert.Equal(t, models.ReminderChannelSMS, channelFor(reloaded, models.ReminderKindDay1))
	assert.Equal(t, "Pay {amount}", templateFor(reloaded, models.ReminderKindPreDue))
	assert.Equal(t, DefaultTemplates[models.ReminderKindDay1], templateFor(reloaded, models.ReminderKindDay1))

	_, err = s.UpdateRule(ctx, owner, RuleUpdate{Channels: map[models.ReminderKind]models.ReminderChannel{models.ReminderKindDay7: "pigeon"}})
	assert.ErrorIs(t, err, ErrInvalidRule)
	_, err = s.UpdateRule(ctx, owner, RuleUpdate{Enabled: map[models.ReminderKind]bool{"day_2": true}})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestList_FiltersByStatus(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)
	_, err := s.Sweep(ctx, owner, testNow)
	require.NoError(t, err)
	_, err = s.CancelPending(ctx, nil, "t-jane", "2024-02", "test")
	require.NoError(t, err)

	res, err := s.List(ctx, owner, &types.ScanRequest{Filters: []*types.CommonFilter{
		{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"pending"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "2024-03", res.Items[0].Cycle)

	other, err := s.List(ctx, "owner-2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.Total)
}
