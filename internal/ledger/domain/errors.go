package domain

import "errors"

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidBill        = errors.New("invalid_bill")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidProviderRef = errors.New("invalid_provider_ref")
	ErrBillNotFound       = errors.New("bill_not_found")
)
