package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReconcileJobStatus string

const (
	ReconcileJobStatusPending ReconcileJobStatus = "pending"
	ReconcileJobStatusDone    ReconcileJobStatus = "done"
	ReconcileJobStatusFailed  ReconcileJobStatus = "failed"
)

// ReconcileJob is the outbox row that guarantees every stored payment gets a
// reconciliation attempt.
type ReconcileJob struct {
	ID            string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TransactionID string             `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex" json:"transaction_id"`
	OwnerID       string             `gorm:"column:owner_id;type:varchar(64);not null" json:"owner_id"`
	Status        ReconcileJobStatus `gorm:"column:status;type:varchar(16);not null;index:idx_reconcile_job_status_next,priority:1" json:"status"`
	Attempts      int                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LockedAt      *time.Time         `gorm:"column:locked_at" json:"locked_at"`
	LockedBy      *string            `gorm:"column:locked_by;type:varchar(64)" json:"locked_by"`
	LastError     string             `gorm:"column:last_error;type:text" json:"last_error"`
	NextRunAt     time.Time          `gorm:"column:next_run_at;not null;index:idx_reconcile_job_status_next,priority:2" json:"next_run_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (ReconcileJob) TableName() string { return "reconcile_job" }

// PushRequest records an outbound push payment so the asynchronous result can
// be tied back to its owner and account reference.
type PushRequest struct {
	ID                  string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OwnerID             string          `gorm:"column:owner_id;type:varchar(64);not null;index" json:"owner_id"`
	TenantID            string          `gorm:"column:tenant_id;type:varchar(64);not null" json:"tenant_id"`
	Phone               string          `gorm:"column:phone;type:varchar(20);not null" json:"phone"`
	Amount              decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	AccountReference    string          `gorm:"column:account_reference;type:varchar(32)" json:"account_reference"`
	MerchantRequestID   string          `gorm:"column:merchant_request_id;type:varchar(64)" json:"merchant_request_id"`
	CheckoutRequestID   string          `gorm:"column:checkout_request_id;type:varchar(64);not null;uniqueIndex" json:"checkout_request_id"`
	ResponseCode        string          `gorm:"column:response_code;type:varchar(8)" json:"response_code"`
	ResponseDescription string          `gorm:"column:response_description;type:varchar(255)" json:"response_description"`
	CreatedAt           time.Time       `json:"created_at"`
}

func (PushRequest) TableName() string { return "push_request" }
