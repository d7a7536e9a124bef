package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentease/rentledger/internal/ledger/domain"
	pkgdb "github.com/rentease/rentledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListBills(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.Bill, error) {
	var bills []domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, landlord_id, for_month, for_year, base_rent,
			utility_cost, paid_amount, status, last_payment_date, created_at, updated_at
		 FROM rent_bills
		 WHERE tenant_id = ?
		 ORDER BY for_year, for_month`,
		tenantID,
	).Scan(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) ListBillsByLandlord(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) ([]domain.Bill, error) {
	var bills []domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, landlord_id, for_month, for_year, base_rent,
			utility_cost, paid_amount, status, last_payment_date, created_at, updated_at
		 FROM rent_bills
		 WHERE landlord_id = ?
		 ORDER BY tenant_id, for_year, for_month`,
		landlordID,
	).Scan(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, bill_id, amount, for_month, for_year,
			provider_ref, payment_date, created_at
		 FROM rent_transactions
		 WHERE tenant_id = ?
		 ORDER BY payment_date`,
		tenantID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) FindBill(ctx context.Context, db *gorm.DB, billID snowflake.ID) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, landlord_id, for_month, for_year, base_rent,
			utility_cost, paid_amount, status, last_payment_date, created_at, updated_at
		 FROM rent_bills
		 WHERE id = ?
		 LIMIT 1`,
		billID,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

// InsertSettlement is the idempotency gate for ledger credits: the
// unique (tenant_id, bill_id, provider_ref) index makes redelivered
// callbacks a no-op insert.
func (r *repo) InsertSettlement(ctx context.Context, db *gorm.DB, settlement *domain.Settlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO rent_settlements (id, tenant_id, bill_id, provider_ref, amount, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, bill_id, provider_ref) DO NOTHING`,
		settlement.ID,
		settlement.TenantID,
		settlement.BillID,
		settlement.ProviderRef,
		settlement.Amount,
		settlement.AppliedAt,
	)
	if res.Error != nil {
		// mysql has no conflict target on the insert above; a raced
		// duplicate surfaces as a key error instead of zero rows.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CreditBill(ctx context.Context, db *gorm.DB, billID snowflake.ID, amount int64, status domain.BillStatus, paidAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE rent_bills
		 SET paid_amount = paid_amount + ?, status = ?, last_payment_date = ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		status,
		paidAt,
		paidAt,
		billID,
	).Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, record *domain.TransactionRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rent_transactions (id, tenant_id, bill_id, amount, for_month, for_year,
			provider_ref, payment_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.TenantID,
		record.BillID,
		record.Amount,
		record.ForMonth,
		record.ForYear,
		record.ProviderRef,
		record.PaymentDate,
		record.CreatedAt,
	).Error
}
