// Package reminder builds rent reminders on an escalation ladder around each
// tenant's due date and hands them to the dispatch adapter.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/rentpay/internal/app/service/billing"
	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/app/service/dispatch"
	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/lock"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
	"github.com/fatflowers/rentpay/pkg/types"
)

const sweepLockTTL = 5 * time.Minute

// Dispatcher sends one reminder instance.
type Dispatcher interface {
	Dispatch(ctx context.Context, instanceID string) (bool, error)
}

type Options struct {
	PaidRatio              float64
	LateFeeRatio           float64
	CompanyName            string
	DefaultLeadDays        int
	DefaultReferenceFormat string
}

type Service struct {
	db         *gorm.DB
	log        *zap.SugaredLogger
	clock      clock.Clock
	loc        *time.Location
	dir        *directory.Service
	locker     lock.Locker
	dispatcher Dispatcher
	opts       Options
}

func New(db *gorm.DB, log *zap.SugaredLogger, clk clock.Clock, loc *time.Location, dir *directory.Service,
	locker lock.Locker, d Dispatcher, opts Options) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, log: log, clock: clk, loc: loc, dir: dir, locker: locker, dispatcher: d, opts: opts}
}

func newServiceFromConfig(db *gorm.DB, log *zap.SugaredLogger, clk clock.Clock, dir *directory.Service,
	locker lock.Locker, d *dispatch.Dispatcher, cfg *config.Config) *Service {
	return New(db, log, clk, cfg.Location(), dir, locker, d, Options{
		PaidRatio:              cfg.Reconciliation.PaidRatio,
		LateFeeRatio:           cfg.Reminder.LateFeeRatio,
		CompanyName:            cfg.Reminder.CompanyName,
		DefaultLeadDays:        cfg.Reminder.DefaultLeadDays,
		DefaultReferenceFormat: cfg.Reconciliation.DefaultReferenceFormat,
	})
}

func asCanceller(s *Service) reconciliation.ReminderCanceller { return s }

var Module = fx.Options(
	fx.Provide(newServiceFromConfig, asCanceller),
	fx.Invoke(NewCron),
)

// ownerSettings are the payment details quoted in messages.
type ownerSettings struct {
	shortcode string
	refFormat string
}

func (s *Service) ownerSettings(ctx context.Context, ownerID string) ownerSettings {
	var cfg models.PaymentConfig
	out := ownerSettings{refFormat: s.opts.DefaultReferenceFormat}
	err := s.db.WithContext(ctx).Select("shortcode", "account_reference_format").
		Where("owner_id = ?", ownerID).Limit(1).Find(&cfg).Error
	if err != nil {
		return out
	}
	out.shortcode = cfg.Shortcode
	if strings.TrimSpace(cfg.AccountReferenceFormat) != "" {
		out.refFormat = cfg.AccountReferenceFormat
	}
	return out
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return "Tenant"
}

func (s *Service) renderVars(t *models.TenantUnitView, due, now time.Time, paid decimal.Decimal, set ownerSettings) map[string]string {
	outstanding := t.RentAmount.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	lateFee := t.RentAmount.Mul(decimal.NewFromFloat(s.opts.LateFeeRatio)).Round(0)
	days := billing.DaysBetween(due, now, s.loc)
	if days < 0 {
		days = 0
	}
	unit := t.UnitNumber
	if unit == "" {
		unit = "your unit"
	}
	return map[string]string{
		"name":      firstName(t.FullName),
		"amount":    FormatAmount(outstanding),
		"unit":      unit,
		"date":      due.In(s.loc).Format("02 January 2006"),
		"shortcode": set.shortcode,
		"reference": reconciliation.RenderReference(set.refFormat, t.UnitNumber, t.FullName),
		"company":   s.opts.CompanyName,
		"late_fee":  FormatAmount(lateFee),
		"total":     FormatAmount(outstanding.Add(lateFee)),
		"days":      strconv.Itoa(days),
	}
}

type SweepResult struct {
	OwnerID        string `json:"owner_id"`
	Evaluated      int    `json:"evaluated"`
	Created        int    `json:"created"`
	SkippedSettled int    `json:"skipped_settled"`
}

// Sweep creates the pending instance for every open, enabled rung of the
// owner's active tenants across the previous, current and next cycle.
// Re-running is a no-op for instances that already exist.
func (s *Service) Sweep(ctx context.Context, ownerID string, now time.Time) (*SweepResult, error) {
	l := logctx.FromCtx(ctx, s.log).With("owner_id", ownerID)
	res := &SweepResult{OwnerID: ownerID}

	rule, err := s.GetOrCreateRule(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		l.Infow("reminder_sweep_skipped", "reason", "rule inactive")
		return res, nil
	}
	tenants, err := s.dir.ActiveTenants(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	settings := s.ownerSettings(ctx, ownerID)

	cur := billing.CycleOf(now, s.loc)
	for _, c := range []billing.Cycle{cur.Prev(), cur, cur.Next()} {
		paidBy, err := s.dir.PaidByTenant(ctx, ownerID, c.Key())
		if err != nil {
			return nil, err
		}
		for _, t := range tenants {
			if strings.TrimSpace(t.Phone) == "" {
				continue
			}
			due := c.DueDate(t.EffectiveDueDay())
			kind, start, ok := OpenRung(due, now, rule.PreDueDays)
			if !ok || !enabledFor(rule, kind) {
				continue
			}
			res.Evaluated++
			paid := paidBy[t.ID]
			if billing.Settled(paid, t.RentAmount, s.opts.PaidRatio) {
				res.SkippedSettled++
				continue
			}
			inst := &models.ReminderInstance{
				ID:           tool.GenerateUUIDV7(),
				OwnerID:      ownerID,
				TenantID:     t.ID,
				UnitID:       t.UnitID,
				Kind:         kind,
				DedupKey:     fmt.Sprintf("%s:%s:%s", t.ID, kind, c.Key()),
				Channel:      channelFor(rule, kind),
				Message:      Render(templateFor(rule, kind), s.renderVars(t, due, now, paid, settings)),
				Status:       models.ReminderStatusPending,
				ScheduledFor: start.UTC(),
				Cycle:        c.Key(),
			}
			r := s.db.WithContext(ctx).
				Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
				Create(inst)
			if r.Error != nil {
				return nil, r.Error
			}
			if r.RowsAffected > 0 {
				res.Created++
			}
		}
	}
	l.Infow("reminder_sweep_done", "evaluated", res.Evaluated, "created", res.Created, "skipped_settled", res.SkippedSettled)
	return res, nil
}

type SweepAllResult struct {
	Owners  []*SweepResult `json:"owners"`
	Skipped []string       `json:"skipped"`
}

// SweepAll sweeps every owner with active tenants. Each owner is swept under
// a lock so replicas never sweep the same owner concurrently.
func (s *Service) SweepAll(ctx context.Context, now time.Time) (*SweepAllResult, error) {
	l := logctx.FromCtx(ctx, s.log)
	owners, err := s.dir.OwnersWithActiveTenants(ctx)
	if err != nil {
		return nil, err
	}
	out := &SweepAllResult{}
	for _, owner := range owners {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := s.SweepOwner(ctx, owner, now)
		if errors.Is(err, ErrSweepBusy) {
			l.Infow("reminder_sweep_lock_busy", "owner_id", owner)
			out.Skipped = append(out.Skipped, owner)
			continue
		}
		if err != nil {
			l.Errorw("reminder_sweep_failed", "owner_id", owner, "err", err)
			out.Skipped = append(out.Skipped, owner)
			continue
		}
		out.Owners = append(out.Owners, res)
	}
	return out, nil
}

// ErrSweepBusy means another replica is sweeping the owner.
var ErrSweepBusy = errors.New("reminder sweep already running for owner")

// SweepOwner runs Sweep under the owner's sweep lock.
func (s *Service) SweepOwner(ctx context.Context, ownerID string, now time.Time) (*SweepResult, error) {
	unlock, ok, err := s.locker.TryLock(ctx, "reminder:sweep:"+ownerID, sweepLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, ErrSweepBusy
	}
	defer unlock()
	return s.Sweep(ctx, ownerID, now)
}

// CancelPending cancels the tenant's pending instances for cycle. A non-nil
// tx joins the caller's DB transaction.
func (s *Service) CancelPending(ctx context.Context, tx *gorm.DB, tenantID, cycle, reason string) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	r := tx.WithContext(ctx).Model(&models.ReminderInstance{}).
		Where("tenant_id = ? AND cycle = ? AND status = ?", tenantID, cycle, models.ReminderStatusPending).
		Updates(map[string]any{
			"status":         models.ReminderStatusCancelled,
			"failure_reason": reason,
			"updated_at":     s.clock.Now().UTC(),
		})
	if r.Error != nil {
		return 0, r.Error
	}
	if r.RowsAffected > 0 {
		logctx.FromCtx(ctx, s.log).Infow("reminders_cancelled", "tenant_id", tenantID, "cycle", cycle, "count", r.RowsAffected, "reason", reason)
	}
	return r.RowsAffected, nil
}

var InstanceFilterFields = map[string]bool{
	"status":        true,
	"kind":          true,
	"channel":       true,
	"tenant_id":     true,
	"cycle":         true,
	"manual":        true,
	"scheduled_for": true,
	"sent_at":       true,
	"created_at":    true,
}

type ListResult struct {
	Items []*models.ReminderInstance `json:"items"`
	Total int64                      `json:"total"`
}

func (s *Service) List(ctx context.Context, ownerID string, req *types.ScanRequest) (*ListResult, error) {
	if req == nil {
		req = &types.ScanRequest{}
	}
	if err := req.Normalize(InstanceFilterFields, "scheduled_for"); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&models.ReminderInstance{}).Where("owner_id = ?", ownerID)
	if len(req.Filters) > 0 {
		q = q.Where(clause.Where{Exprs: []clause.Expression{types.FiltersWhere(req.Filters)}})
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	items := make([]*models.ReminderInstance, 0)
	if err := q.Order(req.OrderClause()).Offset(req.From).Limit(req.Size).Find(&items).Error; err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Total: total}, nil
}
