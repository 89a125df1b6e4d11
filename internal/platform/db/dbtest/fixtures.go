package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/models"
)

// TenantFixture describes a tenant together with its property and unit.
type TenantFixture struct {
	OwnerID    string
	TenantID   string
	PropertyID string
	UnitID     string
	UnitNumber string
	Name       string
	Phone      string
	Rent       int64
	DueDay     int
	Inactive   bool
}

// SeedTenant inserts the property (once), the unit and the tenant.
func SeedTenant(t testing.TB, db *gorm.DB, f TenantFixture) *models.Tenant {
	t.Helper()
	if f.PropertyID == "" {
		f.PropertyID = "prop-" + f.OwnerID
	}
	if f.DueDay == 0 {
		f.DueDay = 1
	}
	prop := models.Property{ID: f.PropertyID, OwnerID: f.OwnerID, Name: "Property " + f.PropertyID}
	require.NoError(t, db.Where(models.Property{ID: f.PropertyID}).FirstOrCreate(&prop).Error)

	var unitID *string
	if f.UnitID != "" {
		require.NoError(t, db.Create(&models.Unit{
			ID: f.UnitID, OwnerID: f.OwnerID, PropertyID: f.PropertyID, UnitNumber: f.UnitNumber,
		}).Error)
		id := f.UnitID
		unitID = &id
	}
	status := models.TenantStatusActive
	if f.Inactive {
		status = models.TenantStatusInactive
	}
	tenant := &models.Tenant{
		ID:         f.TenantID,
		OwnerID:    f.OwnerID,
		PropertyID: f.PropertyID,
		UnitID:     unitID,
		FullName:   f.Name,
		Phone:      f.Phone,
		RentAmount: decimal.NewFromInt(f.Rent),
		DueDay:     f.DueDay,
		Status:     status,
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// SeedPayment records a ledger entry for tenant in cycle.
func SeedPayment(t testing.TB, db *gorm.DB, ownerID, tenantID, cycle, reference string, amount int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.RentPayment{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		TenantID:  tenantID,
		Amount:    decimal.NewFromInt(amount),
		Reference: reference,
		Method:    models.RentPaymentMethodMpesa,
		Source:    "test",
		Cycle:     cycle,
		PaidAt:    time.Now().UTC(),
	}).Error)
}
