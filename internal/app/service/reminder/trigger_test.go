package reminder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/db/dbtest"
)

func TestTrigger_AllUnpaidTenantsWithDefaultKind(t *testing.T) {
	s, db, d := newService(t)
	ctx := context.Background()
	seedJane(t, db, 5)
	dbtest.SeedTenant(t, db, dbtest.TenantFixture{OwnerID: owner, TenantID: "t-paid", Name: "Paid Up", Phone: "0722000000", Rent: 10000, DueDay: 5})
	dbtest.SeedPayment(t, db, owner, "t-paid", "2024-03", "MAR-paid", 10000)

	out, err := s.Trigger(ctx, TriggerInput{OwnerID: owner, Now: testNow})
	require.NoError(t, err)
	require.Len(t, out, 1)
	o := out[0]
	assert.Equal(t, "t-jane", o.TenantID)
	assert.Equal(t, "Jane Wanjiku", o.TenantName)
	assert.Equal(t, models.ReminderKindDay1, o.Kind, "two days past the 5th")
	assert.Equal(t, models.ReminderChannelSMS, o.Channel)
	assert.Equal(t, models.ReminderStatusSent, o.Status)
	assert.Empty(t, o.Error)
	assert.Equal(t, []string{o.ReminderID}, d.calls)

	var inst models.ReminderInstance
	require.NoError(t, db.Where("id = ?", o.ReminderID).First(&inst).Error)
	assert.True(t, inst.Manual)
	assert.Equal(t, "manual:"+inst.ID, inst.DedupKey)
	assert.Contains(t, inst.Message, "was due yesterday")
}

func TestTrigger_SingleTenantExplicitKindAndChannel(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)

	in := TriggerInput{OwnerID: owner, TenantID: "t-jane", Kind: models.ReminderKindFinalNotice, Channel: models.ReminderChannelWhatsApp, Now: testNow}
	first, err := s.Trigger(ctx, in)
	require.NoError(t, err)
	second, err := s.Trigger(ctx, in)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ReminderID, second[0].ReminderID, "manual sends may repeat")
	assert.Equal(t, models.ReminderKindFinalNotice, first[0].Kind)
	assert.Equal(t, models.ReminderChannelWhatsApp, first[0].Channel)

	var n int64
	require.NoError(t, db.Model(&models.ReminderInstance{}).Where("manual = ?", true).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestTrigger_DueTodayWhenNotOverdue(t *testing.T) {
	s, db, _ := newService(t)
	seedJane(t, db, 7)

	out, err := s.Trigger(context.Background(), TriggerInput{OwnerID: owner, TenantID: "t-jane", Now: testNow})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.ReminderKindDueToday, out[0].Kind)
}

func TestTrigger_DispatchFailureReported(t *testing.T) {
	s, db, d := newService(t)
	seedJane(t, db, 7)
	d.fail = "gateway down"

	out, err := s.Trigger(context.Background(), TriggerInput{OwnerID: owner, TenantID: "t-jane", Now: testNow})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.ReminderStatusFailed, out[0].Status)
	assert.Equal(t, "gateway down", out[0].Error)
}

func TestTrigger_Errors(t *testing.T) {
	s, db, _ := newService(t)
	ctx := context.Background()
	seedJane(t, db, 7)

	_, err := s.Trigger(ctx, TriggerInput{OwnerID: owner, TenantID: "missing", Now: testNow})
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = s.Trigger(ctx, TriggerInput{OwnerID: "owner-2", TenantID: "t-jane", Now: testNow})
	assert.ErrorIs(t, err, ErrTenantNotFound, "tenant of another owner")

	_, err = s.Trigger(ctx, TriggerInput{OwnerID: owner, Kind: "day_2", Now: testNow})
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = s.Trigger(ctx, TriggerInput{OwnerID: owner, Channel: "fax", Now: testNow})
	assert.ErrorIs(t, err, ErrInvalidChannel)
}
