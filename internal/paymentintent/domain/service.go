package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InitiateRequest starts a push-to-pay charge toward a landlord's
// settlement account. Amount is minor units.
type InitiateRequest struct {
	TenantID    snowflake.ID  `json:"tenant_id"`
	LandlordID  snowflake.ID  `json:"landlord_id"`
	BillID      *snowflake.ID `json:"bill_id,omitempty"`
	Amount      int64         `json:"amount"`
	PhoneNumber string        `json:"phone_number"`
}

type InitiateResponse struct {
	IntentID        snowflake.ID `json:"payment_intent_id"`
	CustomerMessage string       `json:"customer_message"`
}

// StatusResponse is the client-polled view of an intent.
type StatusResponse struct {
	IntentID      snowflake.ID `json:"payment_intent_id"`
	Status        IntentStatus `json:"status"`
	ResultMessage *string      `json:"result_description,omitempty"`
	ExpiresAt     time.Time    `json:"expires_at"`
}

type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error)
	GetStatus(ctx context.Context, intentID snowflake.ID) (StatusResponse, error)
	ApplyCallback(ctx context.Context, event CallbackEvent) error
	SweepExpired(ctx context.Context, batchSize int) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	FindByID(ctx context.Context, db *gorm.DB, intentID snowflake.ID) (*PaymentIntent, error)
	FindByProviderRef(ctx context.Context, db *gorm.DB, provider, providerRef string) (*PaymentIntent, error)
	FindLandlordAccount(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) (*LandlordAccount, error)

	// MarkSent moves created -> sent (or created -> waiting when the push
	// acceptance already acknowledged prompt delivery) and stores the
	// provider reference. Returns false when the intent was no longer in
	// created.
	MarkSent(ctx context.Context, db *gorm.DB, intentID snowflake.ID, providerRef string, next IntentStatus, now time.Time) (bool, error)

	// MarkTerminal performs the write-once terminal transition. The status
	// guard means the first terminal writer wins and every later attempt
	// reports false.
	MarkTerminal(ctx context.Context, db *gorm.DB, intentID snowflake.ID, status IntentStatus, resultMessage *string, payload []byte, now time.Time) (bool, error)

	// ExpireBatch transitions overdue sent/waiting intents to expired and
	// returns how many rows moved.
	ExpireBatch(ctx context.Context, db *gorm.DB, now time.Time, batchSize int) (int64, error)
}

// PushRequest is what an adapter needs to fire the provider charge prompt.
type PushRequest struct {
	IntentID        snowflake.ID
	Amount          int64
	PhoneNumber     string
	AccountRef      string
	SettlementShort string
	Description     string
}

// PushResult is the provider's synchronous acceptance of a push request.
// PromptDelivered reports that the acceptance already confirmed the
// customer prompt, which lets the intent skip straight to waiting.
type PushResult struct {
	ProviderRef     string
	PromptDelivered bool
	CustomerMessage string
}

// PushAdapter is one mobile-money provider integration: outbound push
// plus inbound callback verification and parsing.
type PushAdapter interface {
	Push(ctx context.Context, req PushRequest) (*PushResult, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*CallbackEvent, error)
}

// AdapterConfig carries provider credentials as loose config, mirroring
// how provider rows store them.
type AdapterConfig struct {
	Config map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PushAdapter, error)
}
