package models

import "time"

type ShortcodeType string

const (
	ShortcodeTypePaybill ShortcodeType = "paybill"
	ShortcodeTypeTill    ShortcodeType = "till"
)

type ProviderEnvironment string

const (
	ProviderEnvironmentSandbox    ProviderEnvironment = "sandbox"
	ProviderEnvironmentProduction ProviderEnvironment = "production"
)

// PaymentConfig is an owner's mobile-money collection setup. One per owner.
type PaymentConfig struct {
	ID            string        `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OwnerID       string        `gorm:"column:owner_id;type:varchar(64);not null;uniqueIndex" json:"owner_id"`
	Shortcode     string        `gorm:"column:shortcode;type:varchar(20);not null;index" json:"shortcode"`
	ShortcodeType ShortcodeType `gorm:"column:shortcode_type;type:varchar(16);not null" json:"shortcode_type"`
	// credentials never leave the service
	ConsumerKey    string `gorm:"column:consumer_key;type:varchar(255)" json:"-"`
	ConsumerSecret string `gorm:"column:consumer_secret;type:varchar(255)" json:"-"`
	Passkey        string `gorm:"column:passkey;type:varchar(255)" json:"-"`
	CallbackURL    string `gorm:"column:callback_url;type:varchar(512)" json:"callback_url"`
	// AccountReferenceFormat is the template tenants type as the account
	// number, e.g. "UNIT-{unit_number}".
	AccountReferenceFormat string              `gorm:"column:account_reference_format;type:varchar(100);not null" json:"account_reference_format"`
	IsActive               bool                `gorm:"column:is_active;not null" json:"is_active"`
	Environment            ProviderEnvironment `gorm:"column:environment;type:varchar(16);not null" json:"environment"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

func (PaymentConfig) TableName() string { return "payment_config" }

// HasCredentials reports whether provider API calls can be made.
func (c *PaymentConfig) HasCredentials() bool {
	return c != nil && c.ConsumerKey != "" && c.ConsumerSecret != ""
}

// CanPush reports whether push payments can be initiated.
func (c *PaymentConfig) CanPush() bool {
	return c.HasCredentials() && c.Passkey != ""
}
