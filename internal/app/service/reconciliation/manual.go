package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/logctx"
)

type ManualMatchInput struct {
	OwnerID       string  `json:"-"`
	TransactionID string  `json:"-"`
	TenantID      string  `json:"tenant_id" binding:"required"`
	UnitID        *string `json:"unit_id"`
	PropertyID    *string `json:"property_id"`
	Actor         string  `json:"-"`
}

type DisputeInput struct {
	OwnerID       string `json:"-"`
	TransactionID string `json:"-"`
	Reason        string `json:"reason" binding:"required"`
	Actor         string `json:"-"`
}

var manualMatchFrom = []models.TransactionStatus{
	models.TransactionStatusUnmatched,
	models.TransactionStatusPartial,
	models.TransactionStatusDisputed,
	models.TransactionStatusDuplicate,
}

func (e *Engine) loadOwned(ctx context.Context, ownerID, id string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := e.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	return &txn, err
}

// placement checks the optional unit and property against the owner's
// directory. A unit alone implies its property.
func (e *Engine) placement(ctx context.Context, in ManualMatchInput) (*string, *string, error) {
	unitID, propertyID := blankToNil(in.UnitID), blankToNil(in.PropertyID)
	if propertyID != nil {
		if _, err := e.dir.Property(ctx, in.OwnerID, *propertyID); err != nil {
			if errors.Is(err, directory.ErrPropertyNotFound) {
				return nil, nil, fmt.Errorf("%w: property %s", ErrInvalidPlacement, *propertyID)
			}
			return nil, nil, err
		}
	}
	if unitID == nil {
		return nil, propertyID, nil
	}
	unit, err := e.dir.Unit(ctx, in.OwnerID, *unitID)
	if errors.Is(err, directory.ErrUnitNotFound) {
		return nil, nil, fmt.Errorf("%w: unit %s", ErrInvalidPlacement, *unitID)
	}
	if err != nil {
		return nil, nil, err
	}
	if propertyID != nil && *propertyID != unit.PropertyID {
		return nil, nil, fmt.Errorf("%w: unit %s is not in property %s", ErrInvalidPlacement, unit.ID, *propertyID)
	}
	return &unit.ID, &unit.PropertyID, nil
}

func blankToNil(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}

// ManualMatch confirms a transaction for a tenant chosen by the owner. It
// always cancels pending reminders for the month the payment is credited to.
func (e *Engine) ManualMatch(ctx context.Context, in ManualMatchInput) (*models.PaymentTransaction, error) {
	txn, err := e.loadOwned(ctx, in.OwnerID, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status == models.TransactionStatusMatched {
		return nil, ErrInvalidTransition
	}
	tenant, err := e.dir.Tenant(ctx, in.OwnerID, in.TenantID)
	if errors.Is(err, directory.ErrTenantNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	unitID, propertyID, err := e.placement(ctx, in)
	if err != nil {
		return nil, err
	}
	actor := strings.TrimSpace(in.Actor)
	if actor == "" {
		actor = in.OwnerID
	}
	a, err := e.applyMatch(ctx, txn, matchTarget{
		tenant:      tenant,
		unitID:      unitID,
		propertyID:  propertyID,
		status:      models.TransactionStatusMatched,
		confidence:  100,
		action:      models.ReconciliationActionManualMatched,
		actor:       actor,
		reason:      "manually matched to " + tenant.FullName,
		expectFrom:  manualMatchFrom,
		alwaysClear: true,
	})
	if errors.Is(err, errStatusChanged) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, e.log).Infow("reconcile_manual_matched",
		"receipt", txn.ReceiptNumber, "tenant_id", tenant.ID, "actor", actor, "cycle", a.cycle, "cancelled_reminders", a.cancelled)
	e.metrics.Decision(string(models.TransactionStatusMatched), "manual")
	return e.loadOwned(ctx, in.OwnerID, in.TransactionID)
}

// Dispute marks a transaction contested. Reminders are left alone, and the
// ledger row stays but no longer counts toward the tenant's paid total.
func (e *Engine) Dispute(ctx context.Context, in DisputeInput) (*models.PaymentTransaction, error) {
	txn, err := e.loadOwned(ctx, in.OwnerID, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status == models.TransactionStatusDisputed {
		return nil, ErrInvalidTransition
	}
	actor := strings.TrimSpace(in.Actor)
	if actor == "" {
		actor = in.OwnerID
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", txn.ID, txn.Status).
			Updates(map[string]any{
				"status":     models.TransactionStatusDisputed,
				"updated_at": e.clock.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStatusChanged
		}
		return appendLog(tx, e.clock, txn.ID, models.ReconciliationActionDisputed,
			txn.Status, models.TransactionStatusDisputed, txn.Confidence, strings.TrimSpace(in.Reason), actor)
	})
	if errors.Is(err, errStatusChanged) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, e.log).Infow("reconcile_disputed", "receipt", txn.ReceiptNumber, "actor", actor)
	e.metrics.Decision(string(models.TransactionStatusDisputed), "manual")
	return e.loadOwned(ctx, in.OwnerID, in.TransactionID)
}
