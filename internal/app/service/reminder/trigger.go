package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/rentpay/internal/app/service/billing"
	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
)

var (
	ErrInvalidKind    = errors.New("unknown reminder kind")
	ErrInvalidChannel = errors.New("unknown reminder channel")
)

type TriggerInput struct {
	OwnerID  string                 `json:"-"`
	TenantID string                 `json:"tenant_id"`
	Kind     models.ReminderKind    `json:"kind"`
	Channel  models.ReminderChannel `json:"channel"`
	Now      time.Time              `json:"-"`
}

type TriggerOutcome struct {
	TenantID    string                 `json:"tenant_id"`
	TenantName  string                 `json:"tenant_name"`
	ReminderID  string                 `json:"reminder_id,omitempty"`
	Kind        models.ReminderKind    `json:"kind"`
	Channel     models.ReminderChannel `json:"channel"`
	Status      models.ReminderStatus  `json:"status"`
	ExternalRef string                 `json:"external_ref,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Trigger sends a reminder now to one tenant, or to every active tenant that
// has not settled the current cycle. Manual sends never collide with
// scheduled ones and may be repeated.
func (s *Service) Trigger(ctx context.Context, in TriggerInput) ([]*TriggerOutcome, error) {
	if in.Kind != "" && !in.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if in.Channel != "" && in.Channel != models.ReminderChannelSMS && in.Channel != models.ReminderChannelWhatsApp {
		return nil, ErrInvalidChannel
	}
	now := in.Now
	if now.IsZero() {
		now = s.clock.Now()
	}
	rule, err := s.GetOrCreateRule(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	cycle := billing.CycleOf(now, s.loc)
	paidBy, err := s.dir.PaidByTenant(ctx, in.OwnerID, cycle.Key())
	if err != nil {
		return nil, err
	}

	var targets []*models.TenantUnitView
	if in.TenantID != "" {
		t, err := s.dir.Tenant(ctx, in.OwnerID, in.TenantID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	} else {
		all, err := s.dir.ActiveTenants(ctx, in.OwnerID)
		if err != nil {
			return nil, err
		}
		for _, t := range all {
			if !billing.Settled(paidBy[t.ID], t.RentAmount, s.opts.PaidRatio) {
				targets = append(targets, t)
			}
		}
	}

	settings := s.ownerSettings(ctx, in.OwnerID)
	out := make([]*TriggerOutcome, 0, len(targets))
	for _, t := range targets {
		out = append(out, s.triggerOne(ctx, rule, t, cycle, now, paidBy[t.ID], settings, in))
	}
	logctx.FromCtx(ctx, s.log).Infow("reminders_triggered", "owner_id", in.OwnerID, "targets", len(out))
	return out, nil
}

func (s *Service) triggerOne(ctx context.Context, rule *models.ReminderRule, t *models.TenantUnitView, cycle billing.Cycle,
	now time.Time, paid decimal.Decimal, set ownerSettings, in TriggerInput) *TriggerOutcome {
	due := cycle.DueDate(t.EffectiveDueDay())
	kind := in.Kind
	if kind == "" {
		kind = models.ReminderKindDueToday
		if billing.DaysBetween(due, now, s.loc) >= 1 {
			kind = models.ReminderKindDay1
		}
	}
	channel := in.Channel
	if channel == "" {
		channel = channelFor(rule, kind)
	}
	o := &TriggerOutcome{TenantID: t.ID, TenantName: t.FullName, Kind: kind, Channel: channel}

	id := tool.GenerateUUIDV7()
	inst := &models.ReminderInstance{
		ID:           id,
		OwnerID:      in.OwnerID,
		TenantID:     t.ID,
		UnitID:       t.UnitID,
		Kind:         kind,
		DedupKey:     "manual:" + id,
		Channel:      channel,
		Message:      Render(templateFor(rule, kind), s.renderVars(t, due, now, paid, set)),
		Status:       models.ReminderStatusPending,
		ScheduledFor: now.UTC(),
		Cycle:        cycle.Key(),
		Manual:       true,
	}
	if err := s.db.WithContext(ctx).Create(inst).Error; err != nil {
		o.Status = models.ReminderStatusFailed
		o.Error = err.Error()
		return o
	}
	o.ReminderID = id

	if _, err := s.dispatcher.Dispatch(ctx, id); err != nil {
		o.Error = err.Error()
	}
	var after models.ReminderInstance
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&after).Error; err != nil {
		o.Status = models.ReminderStatusPending
		if o.Error == "" {
			o.Error = fmt.Sprintf("reload reminder: %v", err)
		}
		return o
	}
	o.Status = after.Status
	o.ExternalRef = after.ExternalRef
	if after.Status == models.ReminderStatusFailed && o.Error == "" {
		o.Error = after.FailureReason
	}
	return o
}

// ErrTenantNotFound is returned by Trigger for an unknown tenant.
var ErrTenantNotFound = directory.ErrTenantNotFound
