package models

import (
	"time"

	"gorm.io/datatypes"
)

type ReminderKind string

const (
	ReminderKindPreDue      ReminderKind = "pre_due"
	ReminderKindDueToday    ReminderKind = "due_today"
	ReminderKindDay1        ReminderKind = "day_1"
	ReminderKindDay3        ReminderKind = "day_3"
	ReminderKindDay7        ReminderKind = "day_7"
	ReminderKindDay14       ReminderKind = "day_14"
	ReminderKindFinalNotice ReminderKind = "final_notice"
)

// ReminderKinds lists the ladder in escalation order.
var ReminderKinds = []ReminderKind{
	ReminderKindPreDue,
	ReminderKindDueToday,
	ReminderKindDay1,
	ReminderKindDay3,
	ReminderKindDay7,
	ReminderKindDay14,
	ReminderKindFinalNotice,
}

func (k ReminderKind) Valid() bool {
	for _, v := range ReminderKinds {
		if v == k {
			return true
		}
	}
	return false
}

type ReminderChannel string

const (
	ReminderChannelSMS      ReminderChannel = "sms"
	ReminderChannelWhatsApp ReminderChannel = "whatsapp"
)

type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// ReminderRule is an owner's reminder configuration. Maps are keyed by
// ReminderKind; missing keys fall back to defaults.
type ReminderRule struct {
	ID         string                                               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OwnerID    string                                               `gorm:"column:owner_id;type:varchar(64);not null;uniqueIndex" json:"owner_id"`
	IsActive   bool                                                 `gorm:"column:is_active;not null" json:"is_active"`
	PreDueDays int                                                  `gorm:"column:pre_due_days;not null" json:"pre_due_days"`
	Channels   datatypes.JSONType[map[ReminderKind]ReminderChannel] `gorm:"column:channels;type:jsonb" json:"channels"`
	Templates  datatypes.JSONType[map[ReminderKind]string]          `gorm:"column:templates;type:jsonb" json:"templates"`
	Enabled    datatypes.JSONType[map[ReminderKind]bool]            `gorm:"column:enabled;type:jsonb" json:"enabled"`
	CreatedAt  time.Time                                            `json:"created_at"`
	UpdatedAt  time.Time                                            `json:"updated_at"`
}

func (ReminderRule) TableName() string { return "reminder_rule" }

// ReminderInstance is one scheduled or manual message to a tenant.
type ReminderInstance struct {
	ID       string       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OwnerID  string       `gorm:"column:owner_id;type:varchar(64);not null;index" json:"owner_id"`
	TenantID string       `gorm:"column:tenant_id;type:varchar(64);not null;index:idx_reminder_tenant_cycle,priority:1" json:"tenant_id"`
	UnitID   *string      `gorm:"column:unit_id;type:varchar(64)" json:"unit_id"`
	Kind     ReminderKind `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	// DedupKey is "<tenant>:<kind>:<cycle>" for scheduled rows and
	// "manual:<id>" for manual sends.
	DedupKey      string          `gorm:"column:dedup_key;type:varchar(160);not null;uniqueIndex" json:"dedup_key"`
	Channel       ReminderChannel `gorm:"column:channel;type:varchar(16);not null" json:"channel"`
	Message       string          `gorm:"column:message;type:text" json:"message"`
	Status        ReminderStatus  `gorm:"column:status;type:varchar(16);not null;index:idx_reminder_status_scheduled,priority:1" json:"status"`
	ScheduledFor  time.Time       `gorm:"column:scheduled_for;not null;index:idx_reminder_status_scheduled,priority:2" json:"scheduled_for"`
	SentAt        *time.Time      `gorm:"column:sent_at" json:"sent_at"`
	Cycle         string          `gorm:"column:cycle;type:varchar(7);not null;index:idx_reminder_tenant_cycle,priority:2" json:"cycle"`
	FailureReason string          `gorm:"column:failure_reason;type:text" json:"failure_reason"`
	ExternalRef   string          `gorm:"column:external_ref;type:text" json:"external_ref"`
	Manual        bool            `gorm:"column:manual;not null" json:"manual"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (ReminderInstance) TableName() string { return "reminder_instance" }
