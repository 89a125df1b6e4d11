package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
)

// PaymentNotificationLog keeps every provider callback as it arrived, for
// troubleshooting. One row per state (received, then handled/handle_failed).
type PaymentNotificationLog struct {
	ID      string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Kind    string  `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	OwnerID *string `gorm:"column:owner_id;type:varchar(64)" json:"owner_id"`
	TraceID string  `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	// ReceiptNumber is empty for push results that failed upstream.
	ReceiptNumber    string                       `gorm:"column:receipt_number;type:varchar(64);index" json:"receipt_number"`
	CorrelationID    string                       `gorm:"column:correlation_id;type:varchar(128)" json:"correlation_id"`
	NotificationTime time.Time                    `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result           *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status           PaymentNotificationLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
