package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// IntentStatus is the coordinator-owned state of a push-to-pay attempt.
// completed, failed and expired are sinks; no edge ever leaves them.
type IntentStatus string

const (
	IntentStatusCreated   IntentStatus = "created"
	IntentStatusSent      IntentStatus = "sent"
	IntentStatusWaiting   IntentStatus = "waiting"
	IntentStatusCompleted IntentStatus = "completed"
	IntentStatusFailed    IntentStatus = "failed"
	IntentStatusExpired   IntentStatus = "expired"
)

// IsTerminal reports whether s is a sink state.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case IntentStatusCompleted, IntentStatusFailed, IntentStatusExpired:
		return true
	}
	return false
}

// PaymentIntent is one push-to-pay attempt. Only the coordinator mutates
// status: validation, provider acceptance, provider callback, expiry sweep.
type PaymentIntent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID   `json:"tenant_id" gorm:"not null;index"`
	LandlordID      snowflake.ID   `json:"landlord_id" gorm:"not null;index"`
	BillID          *snowflake.ID  `json:"bill_id"`
	Amount          int64          `json:"amount" gorm:"not null"`
	PhoneNumber     string         `json:"phone_number" gorm:"type:text;not null"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderRef     string         `json:"provider_ref" gorm:"type:text;index:ix_payment_intents_provider_ref"`
	Status          IntentStatus   `json:"status" gorm:"type:text;not null;index"`
	ResultMessage   *string        `json:"result_message"`
	CallbackPayload datatypes.JSON `json:"callback_payload" gorm:"type:jsonb"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
	ExpiresAt       time.Time      `json:"expires_at" gorm:"not null;index"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

// LandlordAccount is the settlement destination for a landlord's rent
// collections. Initiate refuses to push money toward a landlord without one.
type LandlordAccount struct {
	LandlordID  snowflake.ID `json:"landlord_id" gorm:"primaryKey"`
	Provider    string       `json:"provider" gorm:"type:text;not null"`
	ShortCode   string       `json:"short_code" gorm:"type:text;not null"`
	AccountName string       `json:"account_name" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (LandlordAccount) TableName() string { return "landlord_accounts" }

// CallbackOutcome is the canonical terminal outcome a provider callback
// resolves to.
type CallbackOutcome string

const (
	OutcomeCompleted CallbackOutcome = "completed"
	OutcomeFailed    CallbackOutcome = "failed"
)

// CallbackEvent is the provider callback parsed into canonical form.
type CallbackEvent struct {
	Provider    string
	ProviderRef string
	Outcome     CallbackOutcome
	ResultCode  int
	Description string
	Amount      int64
	RawPayload  []byte
}
