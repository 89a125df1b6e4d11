// Package directory reads the tenant, unit and rent ledger tables that the
// reconciliation and reminder flows depend on.
package directory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/models"
)

var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrUnitNotFound     = errors.New("unit not found")
	ErrPropertyNotFound = errors.New("property not found")
)

const tenantViewSelect = "tenant.*, COALESCE(unit.unit_number, '') AS unit_number, COALESCE(property.name, '') AS property_name"

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

var Module = fx.Options(
	fx.Provide(New),
)

func (s *Service) tenantViews(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Table("tenant").
		Select(tenantViewSelect).
		Joins("LEFT JOIN unit ON unit.id = tenant.unit_id").
		Joins("LEFT JOIN property ON property.id = tenant.property_id")
}

// ActiveTenants lists owner's active tenants with unit numbers.
func (s *Service) ActiveTenants(ctx context.Context, ownerID string) ([]*models.TenantUnitView, error) {
	views := make([]*models.TenantUnitView, 0)
	err := s.tenantViews(ctx, nil).
		Where("tenant.owner_id = ? AND tenant.status = ?", ownerID, models.TenantStatusActive).
		Order("tenant.id").
		Scan(&views).Error
	return views, err
}

// Tenant returns one tenant of owner regardless of status.
func (s *Service) Tenant(ctx context.Context, ownerID, tenantID string) (*models.TenantUnitView, error) {
	views := make([]*models.TenantUnitView, 0, 1)
	err := s.tenantViews(ctx, nil).
		Where("tenant.owner_id = ? AND tenant.id = ?", ownerID, tenantID).
		Limit(1).
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, ErrTenantNotFound
	}
	return views[0], nil
}

// Unit returns one unit of owner.
func (s *Service) Unit(ctx context.Context, ownerID, unitID string) (*models.Unit, error) {
	var units []models.Unit
	err := s.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, unitID).Limit(1).Find(&units).Error
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, ErrUnitNotFound
	}
	return &units[0], nil
}

// Property returns one property of owner.
func (s *Service) Property(ctx context.Context, ownerID, propertyID string) (*models.Property, error) {
	var props []models.Property
	err := s.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, propertyID).Limit(1).Find(&props).Error
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, ErrPropertyNotFound
	}
	return &props[0], nil
}

// OwnersWithActiveTenants returns owner ids that have at least one active
// tenant.
func (s *Service) OwnersWithActiveTenants(ctx context.Context) ([]string, error) {
	owners := make([]string, 0)
	err := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("status = ?", models.TenantStatusActive).
		Distinct("owner_id").Order("owner_id").
		Pluck("owner_id", &owners).Error
	return owners, err
}

// undisputed keeps ledger rows whose receipt is not under dispute.
func undisputed(db *gorm.DB) *gorm.DB {
	return db.Where("rent_payment.reference NOT IN (?)",
		db.Session(&gorm.Session{NewDB: true}).Model(&models.PaymentTransaction{}).
			Select("receipt_number").
			Where("status = ?", models.TransactionStatusDisputed))
}

// PaidInCycle sums the rent ledger for tenant and cycle, leaving out disputed
// receipts. Pass the open transaction as tx to see uncommitted rows.
func (s *Service) PaidInCycle(ctx context.Context, tx *gorm.DB, tenantID, cycle string) (decimal.Decimal, error) {
	if tx == nil {
		tx = s.db
	}
	var amounts []decimal.Decimal
	err := tx.WithContext(ctx).Model(&models.RentPayment{}).
		Where("tenant_id = ? AND cycle = ?", tenantID, cycle).
		Scopes(undisputed).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

// PaidByTenant sums the undisputed ledger per tenant for owner and cycle.
func (s *Service) PaidByTenant(ctx context.Context, ownerID, cycle string) (map[string]decimal.Decimal, error) {
	var rows []models.RentPayment
	err := s.db.WithContext(ctx).Model(&models.RentPayment{}).
		Select("tenant_id", "amount").
		Where("owner_id = ? AND cycle = ?", ownerID, cycle).
		Scopes(undisputed).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.TenantID] = out[r.TenantID].Add(r.Amount)
	}
	return out, nil
}
