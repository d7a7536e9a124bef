package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ApplyPaymentRequest credits one settled payment against a bill. The
// (TenantID, BillID, ProviderRef) triple is the idempotency key.
type ApplyPaymentRequest struct {
	TenantID    snowflake.ID
	BillID      snowflake.ID
	ProviderRef string
	Amount      int64
	PaidAt      time.Time
}

// ApplyPaymentResult reports whether the credit landed or was a replay.
type ApplyPaymentResult struct {
	Applied bool
	Bill    Bill
}

// BillBalance pairs a bill with its computed expected total and signed
// balance.
type BillBalance struct {
	Bill     Bill  `json:"bill"`
	Expected int64 `json:"expected"`
	Balance  int64 `json:"balance"`
}

// TenantSummary is the aggregate position for one tenant: arrears with
// per-bill negative balances clamped to zero, credit tracked separately.
type TenantSummary struct {
	TenantID    snowflake.ID  `json:"tenant_id"`
	Outstanding int64         `json:"outstanding"`
	Credit      int64         `json:"credit"`
	Bills       []BillBalance `json:"bills"`
	SkippedRows int           `json:"skipped_rows,omitempty"`
}

// Statement is the month view: current expected including carried arrears.
type Statement struct {
	TenantID  snowflake.ID `json:"tenant_id"`
	ForMonth  int          `json:"for_month"`
	ForYear   int          `json:"for_year"`
	Expected  int64        `json:"expected"`
	Paid      int64        `json:"paid"`
	Balance   int64        `json:"balance"`
	Carryover int64        `json:"carryover"`
}

// OverviewRow is one tenant line on the landlord dashboard.
type OverviewRow struct {
	TenantID    snowflake.ID `json:"tenant_id"`
	Outstanding int64        `json:"outstanding"`
	Credit      int64        `json:"credit"`
	BillCount   int          `json:"bill_count"`
}

// LandlordOverview rolls tenant positions up per landlord.
type LandlordOverview struct {
	LandlordID snowflake.ID  `json:"landlord_id"`
	Tenants    []OverviewRow `json:"tenants"`
}

type Service interface {
	TenantSummary(ctx context.Context, tenantID snowflake.ID) (TenantSummary, error)
	TenantStatement(ctx context.Context, tenantID snowflake.ID, month, year int) (Statement, error)
	LandlordOverview(ctx context.Context, landlordID snowflake.ID) (LandlordOverview, error)
	ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (ApplyPaymentResult, error)
}

type Repository interface {
	ListBills(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Bill, error)
	ListBillsByLandlord(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) ([]Bill, error)
	ListTransactions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]TransactionRecord, error)
	FindBill(ctx context.Context, db *gorm.DB, billID snowflake.ID) (*Bill, error)
	InsertSettlement(ctx context.Context, db *gorm.DB, settlement *Settlement) (bool, error)
	CreditBill(ctx context.Context, db *gorm.DB, billID snowflake.ID, amount int64, status BillStatus, paidAt time.Time) error
	InsertTransaction(ctx context.Context, db *gorm.DB, record *TransactionRecord) error
}
