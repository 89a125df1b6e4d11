package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/billing"
	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/metrics"
	"github.com/fatflowers/rentpay/pkg/tool"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidAmount       = errors.New("payment amount must be positive")
	ErrInvalidPlacement    = errors.New("unit or property does not belong to owner")

	// errStatusChanged aborts a DB transaction whose conditional update lost
	// a race.
	errStatusChanged = errors.New("transaction status changed concurrently")
)

const cancelReasonPaid = "payment_reconciled"

// ReminderCanceller cancels pending reminders inside the caller's DB
// transaction.
type ReminderCanceller interface {
	CancelPending(ctx context.Context, tx *gorm.DB, tenantID, cycle, reason string) (int64, error)
}

// Classify decides matched vs partial for an amount against expected rent.
// Amounts at or above expected*paidRatio count as paid.
func Classify(amount, expected decimal.Decimal, paidRatio float64) (models.TransactionStatus, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	if !expected.IsPositive() {
		return models.TransactionStatusMatched, nil
	}
	if amount.GreaterThanOrEqual(expected.Mul(decimal.NewFromFloat(paidRatio))) {
		return models.TransactionStatusMatched, nil
	}
	return models.TransactionStatusPartial, nil
}

// Decision is the outcome of one automatic reconciliation attempt.
type Decision struct {
	TransactionID string                   `json:"transaction_id"`
	Status        models.TransactionStatus `json:"status"`
	Confidence    int                      `json:"confidence"`
	TenantID      string                   `json:"tenant_id,omitempty"`
	Applied       bool                     `json:"applied"`
	Reason        string                   `json:"reason"`
	Cycle         string                   `json:"cycle,omitempty"`
	Cancelled     int64                    `json:"cancelled_reminders"`
	Candidates    []Candidate              `json:"candidates"`
}

type Options struct {
	AutoMatchThreshold     int
	PaidRatio              float64
	DuplicateWindow        time.Duration
	NameSimilarityMin      float64
	DefaultReferenceFormat string
}

type Engine struct {
	db        *gorm.DB
	log       *zap.SugaredLogger
	clock     clock.Clock
	dir       *directory.Service
	reminders ReminderCanceller
	metrics   *metrics.Domain
	opts      Options
	scorer    Scorer
}

func NewEngine(db *gorm.DB, log *zap.SugaredLogger, clk clock.Clock, dir *directory.Service,
	reminders ReminderCanceller, m *metrics.Domain, opts Options) *Engine {
	if opts.DefaultReferenceFormat == "" {
		opts.DefaultReferenceFormat = "UNIT-{unit_number}"
	}
	return &Engine{
		db:        db,
		log:       log,
		clock:     clk,
		dir:       dir,
		reminders: reminders,
		metrics:   m,
		opts:      opts,
		scorer:    Scorer{NameSimilarityMin: opts.NameSimilarityMin},
	}
}

func newEngineFromConfig(db *gorm.DB, log *zap.SugaredLogger, clk clock.Clock, dir *directory.Service,
	reminders ReminderCanceller, m *metrics.Domain, cfg *config.Config) *Engine {
	rc := cfg.Reconciliation
	return NewEngine(db, log, clk, dir, reminders, m, Options{
		AutoMatchThreshold:     rc.AutoMatchThreshold,
		PaidRatio:              rc.PaidRatio,
		DuplicateWindow:        rc.DuplicateWindow,
		NameSimilarityMin:      rc.NameSimilarityMin,
		DefaultReferenceFormat: rc.DefaultReferenceFormat,
	})
}

var Module = fx.Options(
	fx.Provide(newEngineFromConfig),
)

// ReferenceFormat is the owner's configured account reference template.
func (e *Engine) ReferenceFormat(ctx context.Context, ownerID string) string {
	var cfg models.PaymentConfig
	err := e.db.WithContext(ctx).Select("account_reference_format").
		Where("owner_id = ?", ownerID).Limit(1).Find(&cfg).Error
	if err != nil || strings.TrimSpace(cfg.AccountReferenceFormat) == "" {
		return e.opts.DefaultReferenceFormat
	}
	return cfg.AccountReferenceFormat
}

// Reconcile runs automatic matching for one transaction. Only unmatched
// transactions are considered; anything else is returned as is.
func (e *Engine) Reconcile(ctx context.Context, transactionID string) (*Decision, error) {
	l := logctx.FromCtx(ctx, e.log)

	var txn models.PaymentTransaction
	err := e.db.WithContext(ctx).Where("id = ?", transactionID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	d := &Decision{TransactionID: txn.ID, Status: txn.Status, Confidence: txn.Confidence, Candidates: []Candidate{}}
	if txn.Status != models.TransactionStatusUnmatched {
		d.Reason = "not unmatched"
		return d, nil
	}
	if !txn.Amount.IsPositive() {
		l.Warnw("reconcile_invalid_amount", "receipt", txn.ReceiptNumber, "amount", txn.Amount.String())
		d.Reason = "invalid amount"
		return d, nil
	}

	dup, err := e.findEarlierDuplicate(ctx, &txn)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		reason := fmt.Sprintf("same phone and amount as receipt %s within %s", dup.ReceiptNumber, e.opts.DuplicateWindow)
		if err := e.markDuplicate(ctx, &txn, reason); err != nil {
			if errors.Is(err, errStatusChanged) {
				d.Reason = "status changed concurrently"
				return d, nil
			}
			return nil, err
		}
		l.Infow("reconcile_flagged_duplicate", "receipt", txn.ReceiptNumber, "earlier_receipt", dup.ReceiptNumber)
		e.metrics.Decision(string(models.TransactionStatusDuplicate), models.PerformedBySystem)
		d.Status, d.Applied, d.Reason = models.TransactionStatusDuplicate, true, reason
		return d, nil
	}

	tenants, err := e.dir.ActiveTenants(ctx, txn.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	parts := ParseReference(e.ReferenceFormat(ctx, txn.OwnerID), txn.AccountReference)
	cands := e.scorer.Score(&txn, parts, tenants)
	d.Candidates = cands

	switch {
	case len(cands) == 0:
		d.Reason = "no candidate"
	case cands[0].Confidence < e.opts.AutoMatchThreshold:
		d.Confidence, d.Reason = cands[0].Confidence, "below threshold"
	case Ambiguous(cands):
		d.Confidence, d.Reason = cands[0].Confidence, "ambiguous top candidates"
	}
	if d.Reason != "" {
		l.Infow("reconcile_left_unmatched", "receipt", txn.ReceiptNumber, "reason", d.Reason, "candidates", len(cands))
		e.metrics.Decision(string(models.TransactionStatusUnmatched), models.PerformedBySystem)
		return d, nil
	}

	top := cands[0]
	status, err := Classify(txn.Amount, top.Tenant.RentAmount, e.opts.PaidRatio)
	if err != nil {
		return nil, err
	}
	reason := top.Reason
	if status == models.TransactionStatusPartial {
		reason = fmt.Sprintf("partial payment %s of %s; %s", txn.Amount.StringFixed(2), top.Tenant.RentAmount.StringFixed(2), reason)
	}
	a, err := e.applyMatch(ctx, &txn, matchTarget{
		tenant:      top.Tenant,
		status:      status,
		confidence:  top.Confidence,
		action:      models.ReconciliationActionAutoMatched,
		actor:       models.PerformedBySystem,
		reason:      reason,
		expectFrom:  []models.TransactionStatus{models.TransactionStatusUnmatched},
		alwaysClear: false,
	})
	if errors.Is(err, errStatusChanged) {
		d.Reason = "status changed concurrently"
		return d, nil
	}
	if err != nil {
		l.Errorw("reconcile_apply_failed", "receipt", txn.ReceiptNumber, "err", err)
		return nil, err
	}
	l.Infow("reconcile_auto_matched",
		"receipt", txn.ReceiptNumber, "tenant_id", top.TenantID, "status", status,
		"confidence", top.Confidence, "cycle", a.cycle, "cancelled_reminders", a.cancelled)
	e.metrics.Decision(string(status), models.PerformedBySystem)

	d.Status, d.Confidence, d.TenantID = status, top.Confidence, top.TenantID
	d.Applied, d.Reason, d.Cycle, d.Cancelled = true, reason, a.cycle, a.cancelled
	return d, nil
}

// findEarlierDuplicate looks for an earlier, non-duplicate payment from the
// same phone with the same amount inside the duplicate window.
func (e *Engine) findEarlierDuplicate(ctx context.Context, txn *models.PaymentTransaction) (*models.PaymentTransaction, error) {
	if e.opts.DuplicateWindow <= 0 || txn.PhoneNumber == "" {
		return nil, nil
	}
	var near []models.PaymentTransaction
	err := e.db.WithContext(ctx).
		Where("owner_id = ? AND phone_number = ? AND id <> ? AND status <> ?",
			txn.OwnerID, txn.PhoneNumber, txn.ID, models.TransactionStatusDuplicate).
		Where("transaction_at >= ? AND transaction_at <= ?",
			txn.TransactionAt.Add(-e.opts.DuplicateWindow).UTC(), txn.TransactionAt.UTC()).
		Order("transaction_at asc, id asc").
		Find(&near).Error
	if err != nil {
		return nil, err
	}
	for i := range near {
		o := &near[i]
		if !o.Amount.Equal(txn.Amount) {
			continue
		}
		earlier := o.TransactionAt.Before(txn.TransactionAt) ||
			(o.TransactionAt.Equal(txn.TransactionAt) && o.ID < txn.ID)
		if earlier {
			return o, nil
		}
	}
	return nil, nil
}

func (e *Engine) markDuplicate(ctx context.Context, txn *models.PaymentTransaction, reason string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionStatusUnmatched).
			Updates(map[string]any{
				"status":     models.TransactionStatusDuplicate,
				"updated_at": e.clock.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStatusChanged
		}
		return appendLog(tx, e.clock, txn.ID, models.ReconciliationActionFlagged,
			models.TransactionStatusUnmatched, models.TransactionStatusDuplicate, 0, reason, models.PerformedBySystem)
	})
}

type matchTarget struct {
	tenant     *models.TenantUnitView
	unitID     *string
	propertyID *string
	status     models.TransactionStatus
	confidence int
	action     models.ReconciliationAction
	actor      string
	reason     string
	// expectFrom guards the conditional update.
	expectFrom []models.TransactionStatus
	// alwaysClear cancels pending reminders even if the cycle is not yet
	// settled (manual confirmation).
	alwaysClear bool
}

type applied struct {
	cycle     string
	cancelled int64
}

// applyMatch links the transaction, writes the ledger row and audit entry and
// cancels reminders, all in one DB transaction.
func (e *Engine) applyMatch(ctx context.Context, txn *models.PaymentTransaction, m matchTarget) (*applied, error) {
	out := &applied{}
	now := e.clock.Now().UTC()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := e.creditCycle(ctx, tx, m.tenant, txn.Cycle)
		if err != nil {
			return fmt.Errorf("credit cycle: %w", err)
		}
		payment, err := upsertLedger(tx, txn, m.tenant, m.actor, cycle, now)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		out.cycle = payment.Cycle

		unitID, propertyID := m.tenant.UnitID, &m.tenant.PropertyID
		if m.unitID != nil {
			unitID = m.unitID
		}
		if m.propertyID != nil {
			propertyID = m.propertyID
		}
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status IN ?", txn.ID, m.expectFrom).
			Updates(map[string]any{
				"status":             m.status,
				"confidence":         m.confidence,
				"tenant_id":          m.tenant.ID,
				"unit_id":            unitID,
				"property_id":        propertyID,
				"matched_payment_id": payment.ID,
				"updated_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStatusChanged
		}
		if err := appendLog(tx, e.clock, txn.ID, m.action, txn.Status, m.status, m.confidence, m.reason, m.actor); err != nil {
			return err
		}

		cancel := m.alwaysClear
		if !cancel {
			paid, err := e.dir.PaidInCycle(ctx, tx, m.tenant.ID, payment.Cycle)
			if err != nil {
				return err
			}
			cancel = billing.Settled(paid, m.tenant.RentAmount, e.opts.PaidRatio)
		}
		if cancel && e.reminders != nil {
			n, err := e.reminders.CancelPending(ctx, tx, m.tenant.ID, payment.Cycle, cancelReasonPaid)
			if err != nil {
				return fmt.Errorf("cancel reminders: %w", err)
			}
			out.cancelled = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// creditCycle picks the billing month a payment counts toward: the previous
// month while it is owed and was chased or part paid, else the month the
// payment falls in, else the next month once that one is covered.
func (e *Engine) creditCycle(ctx context.Context, tx *gorm.DB, tenant *models.TenantUnitView, paidIn string) (string, error) {
	cur, err := billing.ParseCycle(paidIn, time.UTC)
	if err != nil {
		return paidIn, nil
	}
	settled := func(cycle string) (bool, decimal.Decimal, error) {
		paid, err := e.dir.PaidInCycle(ctx, tx, tenant.ID, cycle)
		if err != nil {
			return false, decimal.Zero, err
		}
		return billing.Settled(paid, tenant.RentAmount, e.opts.PaidRatio), paid, nil
	}

	prev := cur.Prev().Key()
	ok, paid, err := settled(prev)
	if err != nil {
		return "", err
	}
	if !ok {
		owed := paid.IsPositive()
		if !owed {
			var chased int64
			err := tx.WithContext(ctx).Model(&models.ReminderInstance{}).
				Where("tenant_id = ? AND cycle = ? AND manual = ? AND status <> ?",
					tenant.ID, prev, false, models.ReminderStatusCancelled).
				Count(&chased).Error
			if err != nil {
				return "", err
			}
			owed = chased > 0
		}
		if owed {
			return prev, nil
		}
	}
	for _, c := range []string{cur.Key(), cur.Next().Key()} {
		ok, _, err := settled(c)
		if err != nil {
			return "", err
		}
		if !ok {
			return c, nil
		}
	}
	return cur.Key(), nil
}

// upsertLedger returns the ledger row for the receipt, creating it once in
// cycle.
func upsertLedger(tx *gorm.DB, txn *models.PaymentTransaction, tenant *models.TenantUnitView, actor, cycle string, now time.Time) (*models.RentPayment, error) {
	var existing []models.RentPayment
	if err := tx.Where("reference = ?", txn.ReceiptNumber).Limit(1).Find(&existing).Error; err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		p := &existing[0]
		if p.TenantID != tenant.ID {
			// re-pointing a disputed payment at another tenant
			err := tx.Model(p).Updates(map[string]any{"tenant_id": tenant.ID, "unit_id": tenant.UnitID, "cycle": cycle}).Error
			if err != nil {
				return nil, err
			}
			p.TenantID, p.UnitID, p.Cycle = tenant.ID, tenant.UnitID, cycle
		}
		return p, nil
	}
	source := "mpesa_auto_reconciled"
	if actor != models.PerformedBySystem {
		source = "mpesa_manual"
	}
	p := &models.RentPayment{
		ID:        tool.GenerateUUIDV7(),
		OwnerID:   txn.OwnerID,
		TenantID:  tenant.ID,
		UnitID:    tenant.UnitID,
		Amount:    txn.Amount,
		Reference: txn.ReceiptNumber,
		Method:    models.RentPaymentMethodMpesa,
		Source:    source,
		Cycle:     cycle,
		PaidAt:    txn.TransactionAt.UTC(),
		CreatedAt: now,
	}
	return p, tx.Create(p).Error
}

func appendLog(tx *gorm.DB, clk clock.Clock, txnID string, action models.ReconciliationAction,
	before, after models.TransactionStatus, confidence int, reason, actor string) error {
	return tx.Create(&models.ReconciliationLog{
		ID:            tool.GenerateUUIDV7(),
		TransactionID: txnID,
		Action:        action,
		StatusBefore:  before,
		StatusAfter:   after,
		Confidence:    confidence,
		Reason:        reason,
		PerformedBy:   actor,
		CreatedAt:     clk.Now().UTC(),
	}).Error
}
