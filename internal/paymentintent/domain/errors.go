package domain

import "errors"

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidLandlord   = errors.New("invalid_landlord")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrAmountTooLarge    = errors.New("amount_too_large")
	ErrInvalidPhone      = errors.New("invalid_phone")
	ErrIntentNotFound    = errors.New("intent_not_found")

	ErrNoSettlementAccount = errors.New("no_settlement_account")

	ErrProviderNotFound          = errors.New("provider_not_found")
	ErrProviderUnavailable       = errors.New("provider_unavailable")
	ErrProviderMalformedResponse = errors.New("provider_malformed_response")

	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventIgnored     = errors.New("event_ignored")
)
