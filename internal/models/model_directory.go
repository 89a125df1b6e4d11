package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Directory tables are owned by the property-management side; this service
// only reads them (and writes RentPayment on a match).

type Property struct {
	ID        string    `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	OwnerID   string    `gorm:"column:owner_id;type:varchar(64);not null;index" json:"owner_id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Property) TableName() string { return "property" }

type Unit struct {
	ID         string    `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	OwnerID    string    `gorm:"column:owner_id;type:varchar(64);not null;index" json:"owner_id"`
	PropertyID string    `gorm:"column:property_id;type:varchar(64);not null;index" json:"property_id"`
	UnitNumber string    `gorm:"column:unit_number;type:varchar(32);not null" json:"unit_number"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Unit) TableName() string { return "unit" }

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

type Tenant struct {
	ID         string          `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	OwnerID    string          `gorm:"column:owner_id;type:varchar(64);not null;index" json:"owner_id"`
	PropertyID string          `gorm:"column:property_id;type:varchar(64);not null" json:"property_id"`
	UnitID     *string         `gorm:"column:unit_id;type:varchar(64)" json:"unit_id"`
	FullName   string          `gorm:"column:full_name;type:varchar(255);not null" json:"full_name"`
	Phone      string          `gorm:"column:phone;type:varchar(20)" json:"phone"`
	RentAmount decimal.Decimal `gorm:"column:rent_amount;type:numeric(14,2);not null" json:"rent_amount"`
	// DueDay is the day of month rent falls due, 1-28.
	DueDay    int          `gorm:"column:due_day;not null;default:1" json:"due_day"`
	Status    TenantStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Tenant) TableName() string { return "tenant" }

// EffectiveDueDay clamps DueDay to 1-28.
func (t *Tenant) EffectiveDueDay() int {
	switch {
	case t.DueDay < 1:
		return 1
	case t.DueDay > 28:
		return 28
	}
	return t.DueDay
}

// TenantUnitView is a tenant joined with its unit number, the shape the
// matching engine and reminder rendering need.
type TenantUnitView struct {
	Tenant
	UnitNumber   string `gorm:"column:unit_number" json:"unit_number"`
	PropertyName string `gorm:"column:property_name" json:"property_name"`
}

const RentPaymentMethodMpesa = "mpesa"

// RentPayment is the rent ledger row created when a payment is matched.
type RentPayment struct {
	ID        string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OwnerID   string          `gorm:"column:owner_id;type:varchar(64);not null;index" json:"owner_id"`
	TenantID  string          `gorm:"column:tenant_id;type:varchar(64);not null;index:idx_rent_payment_tenant_cycle,priority:1" json:"tenant_id"`
	UnitID    *string         `gorm:"column:unit_id;type:varchar(64)" json:"unit_id"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Reference string          `gorm:"column:reference;type:varchar(64);not null;uniqueIndex" json:"reference"`
	Method    string          `gorm:"column:method;type:varchar(16);not null" json:"method"`
	Source    string          `gorm:"column:source;type:varchar(32)" json:"source"`
	Cycle     string          `gorm:"column:cycle;type:varchar(7);not null;index:idx_rent_payment_tenant_cycle,priority:2" json:"cycle"`
	PaidAt    time.Time       `gorm:"column:paid_at;not null" json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
}

func (RentPayment) TableName() string { return "rent_payment" }
