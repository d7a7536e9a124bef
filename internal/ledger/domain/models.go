package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RecordKind is the explicit discriminant between obligation records and
// payment receipts. Aggregation must branch on this tag, never on payload
// content.
type RecordKind string

const (
	RecordKindBill        RecordKind = "bill"
	RecordKindTransaction RecordKind = "transaction"
)

// BillStatus tracks how much of a monthly obligation has been settled.
type BillStatus string

const (
	BillStatusPending   BillStatus = "pending"
	BillStatusPartial   BillStatus = "partial"
	BillStatusCompleted BillStatus = "completed"
	BillStatusOverpaid  BillStatus = "overpaid"
)

// Bill is one tenant's monthly rent+utilities obligation. Bills are never
// deleted; payments only ever append to PaidAmount.
type Bill struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID `json:"tenant_id" gorm:"not null;index:ix_rent_bills_tenant"`
	LandlordID      snowflake.ID `json:"landlord_id" gorm:"not null;index"`
	ForMonth        int          `json:"for_month" gorm:"not null"`
	ForYear         int          `json:"for_year" gorm:"not null"`
	BaseRent        int64        `json:"base_rent" gorm:"not null"`
	UtilityCost     int64        `json:"utility_cost" gorm:"not null"`
	PaidAmount      int64        `json:"paid_amount" gorm:"not null;default:0"`
	Status          BillStatus   `json:"status" gorm:"type:text;not null"`
	LastPaymentDate *time.Time   `json:"last_payment_date"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Bill) TableName() string { return "rent_bills" }

// TransactionRecord is an append-only receipt of one money movement. It
// feeds revenue reporting and must never be summed into outstanding
// balances.
type TransactionRecord struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID    snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	BillID      snowflake.ID `json:"bill_id" gorm:"not null;index"`
	Amount      int64        `json:"amount" gorm:"not null"`
	ForMonth    int          `json:"for_month" gorm:"not null"`
	ForYear     int          `json:"for_year" gorm:"not null"`
	ProviderRef string       `json:"provider_ref" gorm:"type:text;not null"`
	PaymentDate time.Time    `json:"payment_date" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (TransactionRecord) TableName() string { return "rent_transactions" }

// Settlement guards the ledger write contract: one credit per
// (tenant, bill, provider reference), so callback redelivery cannot
// double-credit a bill.
type Settlement struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID    snowflake.ID `json:"tenant_id" gorm:"not null;uniqueIndex:ux_rent_settlements_ref,priority:1"`
	BillID      snowflake.ID `json:"bill_id" gorm:"not null;uniqueIndex:ux_rent_settlements_ref,priority:2"`
	ProviderRef string       `json:"provider_ref" gorm:"type:text;not null;uniqueIndex:ux_rent_settlements_ref,priority:3"`
	Amount      int64        `json:"amount" gorm:"not null"`
	AppliedAt   time.Time    `json:"applied_at" gorm:"not null"`
}

func (Settlement) TableName() string { return "rent_settlements" }

// LedgerRecord is the read contract consumed by the allocation engine:
// a flattened view over bills and transaction receipts.
type LedgerRecord struct {
	Kind            RecordKind
	BillID          snowflake.ID
	ForMonth        int
	ForYear         int
	BaseRent        int64
	UtilityCost     int64
	PaidAmount      int64
	Amount          int64
	LastPaymentDate *time.Time
	PaymentDate     *time.Time
}

// RecordFromBill flattens a stored bill into the allocation read contract.
func RecordFromBill(b Bill) LedgerRecord {
	return LedgerRecord{
		Kind:            RecordKindBill,
		BillID:          b.ID,
		ForMonth:        b.ForMonth,
		ForYear:         b.ForYear,
		BaseRent:        b.BaseRent,
		UtilityCost:     b.UtilityCost,
		PaidAmount:      b.PaidAmount,
		LastPaymentDate: b.LastPaymentDate,
	}
}

// RecordFromTransaction flattens a receipt into the allocation read contract.
func RecordFromTransaction(t TransactionRecord) LedgerRecord {
	paymentDate := t.PaymentDate
	return LedgerRecord{
		Kind:        RecordKindTransaction,
		BillID:      t.BillID,
		ForMonth:    t.ForMonth,
		ForYear:     t.ForYear,
		Amount:      t.Amount,
		PaymentDate: &paymentDate,
	}
}

// StatusFor restates a bill status from cumulative paid vs expected.
func StatusFor(expected, paid int64) BillStatus {
	switch {
	case paid <= 0:
		return BillStatusPending
	case paid < expected:
		return BillStatusPartial
	case paid == expected:
		return BillStatusCompleted
	default:
		return BillStatusOverpaid
	}
}
