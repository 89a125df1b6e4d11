package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionKind string

const (
	TransactionKindPaybill TransactionKind = "paybill"
	TransactionKindTill    TransactionKind = "till"
	TransactionKindSTKPush TransactionKind = "stk_push"
)

type TransactionStatus string

const (
	TransactionStatusUnmatched TransactionStatus = "unmatched"
	TransactionStatusMatched   TransactionStatus = "matched"
	TransactionStatusPartial   TransactionStatus = "partial"
	TransactionStatusDisputed  TransactionStatus = "disputed"
	TransactionStatusDuplicate TransactionStatus = "duplicate"
)

// PaymentTransaction is one inbound mobile-money payment. Rows are never
// deleted; ReceiptNumber is the provider's idempotency key.
type PaymentTransaction struct {
	ID            string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OwnerID       string          `gorm:"column:owner_id;type:varchar(64);not null;index:idx_payment_txn_owner_status,priority:1" json:"owner_id"`
	PropertyID    *string         `gorm:"column:property_id;type:varchar(64)" json:"property_id"`
	UnitID        *string         `gorm:"column:unit_id;type:varchar(64)" json:"unit_id"`
	TenantID      *string         `gorm:"column:tenant_id;type:varchar(64);index" json:"tenant_id"`
	ReceiptNumber string          `gorm:"column:receipt_number;type:varchar(64);not null;uniqueIndex" json:"receipt_number"`
	Kind          TransactionKind `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	PhoneNumber   string          `gorm:"column:phone_number;type:varchar(20);index:idx_payment_txn_phone_time,priority:1" json:"phone_number"`
	// PayerName is the name the provider reports for the payer, when any.
	PayerName        string          `gorm:"column:payer_name;type:varchar(255)" json:"payer_name"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	AccountReference string          `gorm:"column:account_reference;type:varchar(100)" json:"account_reference"`
	Description      string          `gorm:"column:description;type:varchar(255)" json:"description"`
	TransactionAt    time.Time       `gorm:"column:transaction_at;not null;index:idx_payment_txn_phone_time,priority:2" json:"transaction_at"`
	// Cycle is the billing month ("2006-01") the payment falls in.
	Cycle            string            `gorm:"column:cycle;type:varchar(7);not null" json:"cycle"`
	Status           TransactionStatus `gorm:"column:status;type:varchar(16);not null;index:idx_payment_txn_owner_status,priority:2" json:"status"`
	Confidence       int               `gorm:"column:confidence;not null;default:0" json:"confidence"`
	MatchedPaymentID *string           `gorm:"column:matched_payment_id;type:varchar(64)" json:"matched_payment_id"`
	RawPayload       datatypes.JSON    `gorm:"column:raw_payload;type:jsonb" json:"raw_payload"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transaction" }
