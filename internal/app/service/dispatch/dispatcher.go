package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/billing"
	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/metrics"
)

var ErrInstanceNotFound = errors.New("reminder instance not found")

const cancelReasonSettled = "cycle_settled"

// Dispatcher sends pending reminder instances. Status and the tenant's
// ledger are checked before any network call and results are written only
// while the row is still pending.
type Dispatcher struct {
	db        *gorm.DB
	log       *zap.SugaredLogger
	clock     clock.Clock
	dir       *directory.Service
	channels  Registry
	metrics   *metrics.Domain
	region    string
	paidRatio float64
	batch     int
}

type Options struct {
	Region    string
	PaidRatio float64
	Batch     int
}

func NewDispatcher(db *gorm.DB, log *zap.SugaredLogger, clk clock.Clock, dir *directory.Service, channels Registry, m *metrics.Domain, opts Options) *Dispatcher {
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	return &Dispatcher{
		db: db, log: log, clock: clk, dir: dir, channels: channels, metrics: m,
		region: opts.Region, paidRatio: opts.PaidRatio, batch: opts.Batch,
	}
}

func newDispatcherFromConfig(db *gorm.DB, log *zap.SugaredLogger, clk clock.Clock, dir *directory.Service, m *metrics.Domain, cfg *config.Config) *Dispatcher {
	sms := NewSMSChannel(cfg.SMS, &http.Client{Timeout: 15 * time.Second}, log, m)
	return NewDispatcher(db, log, clk, dir, NewRegistry(sms, DeepLinkChannel{}), m, Options{
		Region:    cfg.Mpesa.DefaultCountry,
		PaidRatio: cfg.Reconciliation.PaidRatio,
		Batch:     cfg.Reminder.DispatchBatch,
	})
}

var Module = fx.Options(
	fx.Provide(newDispatcherFromConfig),
)

// Channels exposes the registry for request validation.
func (d *Dispatcher) Channels() Registry { return d.channels }

// Dispatch sends one instance. It returns true only when this call moved
// the instance to sent.
func (d *Dispatcher) Dispatch(ctx context.Context, instanceID string) (bool, error) {
	l := logctx.FromCtx(ctx, d.log).With("reminder_id", instanceID)

	var inst models.ReminderInstance
	err := d.db.WithContext(ctx).Where("id = ?", instanceID).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrInstanceNotFound
	}
	if err != nil {
		return false, err
	}
	if inst.Status != models.ReminderStatusPending {
		l.Warnw("dispatch_skipped_not_pending", "status", inst.Status)
		return false, nil
	}

	var tenant models.Tenant
	err = d.db.WithContext(ctx).Where("id = ?", inst.TenantID).Limit(1).Find(&tenant).Error
	if err != nil {
		return false, err
	}
	// a sweep racing a match can leave a pending row for a paid cycle
	if !inst.Manual && tenant.ID != "" {
		paid, err := d.dir.PaidInCycle(ctx, nil, tenant.ID, inst.Cycle)
		if err != nil {
			return false, err
		}
		if billing.Settled(paid, tenant.RentAmount, d.paidRatio) {
			return false, d.markCancelled(ctx, &inst, cancelReasonSettled)
		}
	}

	phone := ""
	if tenant.Phone != "" {
		phone = mpesa.NormalizePhoneLenient(tenant.Phone, d.region)
	}
	if phone == "" {
		return false, d.markFailed(ctx, &inst, "tenant has no phone number")
	}
	ch, err := d.channels.Get(inst.Channel)
	if err != nil {
		return false, d.markFailed(ctx, &inst, err.Error())
	}

	out, sendErr := ch.Send(ctx, phone, inst.Message)
	if sendErr != nil {
		l.Warnw("dispatch_send_failed", "channel", inst.Channel, "err", sendErr)
		return false, d.markFailed(ctx, &inst, sendErr.Error())
	}

	now := d.clock.Now().UTC()
	res := d.db.WithContext(ctx).Model(&models.ReminderInstance{}).
		Where("id = ? AND status = ?", inst.ID, models.ReminderStatusPending).
		Updates(map[string]any{
			"status":       models.ReminderStatusSent,
			"sent_at":      now,
			"external_ref": out.ExternalRef,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		l.Warnw("dispatch_result_discarded", "reason", "instance left pending state during send")
		return false, nil
	}
	d.metrics.Reminder(string(inst.Channel), string(models.ReminderStatusSent))
	l.Infow("reminder_sent", "channel", inst.Channel, "outcome", out.Kind, "kind", inst.Kind)
	return true, nil
}

func (d *Dispatcher) markCancelled(ctx context.Context, inst *models.ReminderInstance, reason string) error {
	res := d.db.WithContext(ctx).Model(&models.ReminderInstance{}).
		Where("id = ? AND status = ?", inst.ID, models.ReminderStatusPending).
		Updates(map[string]any{
			"status":         models.ReminderStatusCancelled,
			"failure_reason": reason,
			"updated_at":     d.clock.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		d.metrics.Reminder(string(inst.Channel), string(models.ReminderStatusCancelled))
		logctx.FromCtx(ctx, d.log).Infow("reminder_cancelled_settled", "reminder_id", inst.ID, "cycle", inst.Cycle)
	}
	return nil
}

func (d *Dispatcher) markFailed(ctx context.Context, inst *models.ReminderInstance, reason string) error {
	res := d.db.WithContext(ctx).Model(&models.ReminderInstance{}).
		Where("id = ? AND status = ?", inst.ID, models.ReminderStatusPending).
		Updates(map[string]any{
			"status":         models.ReminderStatusFailed,
			"failure_reason": reason,
			"updated_at":     d.clock.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		d.metrics.Reminder(string(inst.Channel), string(models.ReminderStatusFailed))
		logctx.FromCtx(ctx, d.log).Warnw("reminder_failed", "reminder_id", inst.ID, "reason", reason)
	}
	return nil
}

type DueResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// DispatchDue sends pending instances scheduled at or before now, one batch.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (*DueResult, error) {
	var ids []string
	err := d.db.WithContext(ctx).Model(&models.ReminderInstance{}).
		Where("status = ? AND scheduled_for <= ?", models.ReminderStatusPending, now.UTC()).
		Order("scheduled_for asc").
		Limit(d.batch).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	res := &DueResult{}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Attempted++
		ok, err := d.Dispatch(ctx, id)
		if err != nil {
			logctx.FromCtx(ctx, d.log).Errorw("dispatch_error", "reminder_id", id, "err", err)
		}
		switch {
		case ok:
			res.Sent++
		case err == nil && d.statusOf(ctx, id) == models.ReminderStatusCancelled:
			res.Cancelled++
		default:
			res.Failed++
		}
	}
	return res, nil
}

func (d *Dispatcher) statusOf(ctx context.Context, id string) models.ReminderStatus {
	var status models.ReminderStatus
	_ = d.db.WithContext(ctx).Model(&models.ReminderInstance{}).Where("id = ?", id).Limit(1).Pluck("status", &status).Error
	return status
}
