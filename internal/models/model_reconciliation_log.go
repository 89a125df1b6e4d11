package models

import "time"

type ReconciliationAction string

const (
	ReconciliationActionAutoMatched   ReconciliationAction = "auto_matched"
	ReconciliationActionManualMatched ReconciliationAction = "manual_matched"
	ReconciliationActionFlagged       ReconciliationAction = "flagged"
	ReconciliationActionDisputed      ReconciliationAction = "disputed"
)

// PerformedBySystem marks entries written by the matching engine.
const PerformedBySystem = "system"

// ReconciliationLog is the append-only audit trail of reconciliation
// decisions. Rows are inserted and never updated or deleted.
type ReconciliationLog struct {
	ID            string               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TransactionID string               `gorm:"column:transaction_id;type:uuid;not null;index" json:"transaction_id"`
	Action        ReconciliationAction `gorm:"column:action;type:varchar(32);not null" json:"action"`
	StatusBefore  TransactionStatus    `gorm:"column:status_before;type:varchar(16)" json:"status_before"`
	StatusAfter   TransactionStatus    `gorm:"column:status_after;type:varchar(16)" json:"status_after"`
	Confidence    int                  `gorm:"column:confidence" json:"confidence"`
	Reason        string               `gorm:"column:reason;type:text" json:"reason"`
	PerformedBy   string               `gorm:"column:performed_by;type:varchar(64);not null" json:"performed_by"`
	CreatedAt     time.Time            `json:"created_at"`
}

func (ReconciliationLog) TableName() string { return "reconciliation_log" }
