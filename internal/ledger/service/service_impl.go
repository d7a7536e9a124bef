package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentease/rentledger/internal/ledger/allocation"
	ledgerdomain "github.com/rentease/rentledger/internal/ledger/domain"
	obsmetrics "github.com/rentease/rentledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) TenantSummary(ctx context.Context, tenantID snowflake.ID) (ledgerdomain.TenantSummary, error) {
	if tenantID == 0 {
		return ledgerdomain.TenantSummary{}, ledgerdomain.ErrInvalidTenant
	}

	records, bills, err := s.loadRecords(ctx, tenantID)
	if err != nil {
		return ledgerdomain.TenantSummary{}, err
	}

	summary := allocation.OutstandingSum(records, nil)
	s.logWarnings(ctx, tenantID, summary.Warnings)

	result := ledgerdomain.TenantSummary{
		TenantID:    tenantID,
		Outstanding: summary.Outstanding,
		Credit:      summary.Credit,
		SkippedRows: len(summary.Warnings),
	}
	for _, b := range bills {
		record := ledgerdomain.RecordFromBill(b)
		result.Bills = append(result.Bills, ledgerdomain.BillBalance{
			Bill:     b,
			Expected: allocation.Expected(record),
			Balance:  allocation.Balance(record),
		})
	}
	return result, nil
}

func (s *Service) TenantStatement(ctx context.Context, tenantID snowflake.ID, month, year int) (ledgerdomain.Statement, error) {
	if tenantID == 0 {
		return ledgerdomain.Statement{}, ledgerdomain.ErrInvalidTenant
	}

	records, bills, err := s.loadRecords(ctx, tenantID)
	if err != nil {
		return ledgerdomain.Statement{}, err
	}

	expected, warnings := allocation.ExpectedForMonth(records, month, year, nil)
	s.logWarnings(ctx, tenantID, warnings)
	balance, _ := allocation.BalanceForMonth(records, month, year, nil)
	carryover, _ := allocation.Carryover(records, month, year, nil)

	var paid int64
	for _, b := range bills {
		if b.ForMonth == month && b.ForYear == year {
			paid = b.PaidAmount
		}
	}

	return ledgerdomain.Statement{
		TenantID:  tenantID,
		ForMonth:  month,
		ForYear:   year,
		Expected:  expected,
		Paid:      paid,
		Balance:   balance,
		Carryover: carryover,
	}, nil
}

func (s *Service) LandlordOverview(ctx context.Context, landlordID snowflake.ID) (ledgerdomain.LandlordOverview, error) {
	if landlordID == 0 {
		return ledgerdomain.LandlordOverview{}, ledgerdomain.ErrInvalidTenant
	}

	bills, err := s.repo.ListBillsByLandlord(ctx, s.db, landlordID)
	if err != nil {
		return ledgerdomain.LandlordOverview{}, err
	}

	byTenant := make(map[snowflake.ID][]ledgerdomain.LedgerRecord)
	counts := make(map[snowflake.ID]int)
	for _, b := range bills {
		byTenant[b.TenantID] = append(byTenant[b.TenantID], ledgerdomain.RecordFromBill(b))
		counts[b.TenantID]++
	}

	overview := ledgerdomain.LandlordOverview{LandlordID: landlordID}
	for tenantID, records := range byTenant {
		summary := allocation.OutstandingSum(records, nil)
		s.logWarnings(ctx, tenantID, summary.Warnings)
		overview.Tenants = append(overview.Tenants, ledgerdomain.OverviewRow{
			TenantID:    tenantID,
			Outstanding: summary.Outstanding,
			Credit:      summary.Credit,
			BillCount:   counts[tenantID],
		})
	}
	sort.Slice(overview.Tenants, func(i, j int) bool {
		return overview.Tenants[i].TenantID < overview.Tenants[j].TenantID
	})
	return overview, nil
}

// ApplyPayment credits a settled payment against its bill exactly once.
// The settlement insert is the gate: when the (tenant, bill, provider
// ref) triple already exists the whole call is a no-op replay.
func (s *Service) ApplyPayment(ctx context.Context, req ledgerdomain.ApplyPaymentRequest) (ledgerdomain.ApplyPaymentResult, error) {
	if req.TenantID == 0 {
		return ledgerdomain.ApplyPaymentResult{}, ledgerdomain.ErrInvalidTenant
	}
	if req.BillID == 0 {
		return ledgerdomain.ApplyPaymentResult{}, ledgerdomain.ErrInvalidBill
	}
	if req.Amount <= 0 {
		return ledgerdomain.ApplyPaymentResult{}, ledgerdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.ProviderRef) == "" {
		return ledgerdomain.ApplyPaymentResult{}, ledgerdomain.ErrInvalidProviderRef
	}
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var result ledgerdomain.ApplyPaymentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := s.repo.FindBill(ctx, tx, req.BillID)
		if err != nil {
			return err
		}
		if bill == nil || bill.TenantID != req.TenantID {
			return ledgerdomain.ErrBillNotFound
		}

		inserted, err := s.repo.InsertSettlement(ctx, tx, &ledgerdomain.Settlement{
			ID:          s.genID.Generate(),
			TenantID:    req.TenantID,
			BillID:      req.BillID,
			ProviderRef: strings.TrimSpace(req.ProviderRef),
			Amount:      req.Amount,
			AppliedAt:   paidAt,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result = ledgerdomain.ApplyPaymentResult{Applied: false, Bill: *bill}
			return nil
		}

		expected := bill.BaseRent + bill.UtilityCost
		newPaid := bill.PaidAmount + req.Amount
		status := ledgerdomain.StatusFor(expected, newPaid)

		if err := s.repo.CreditBill(ctx, tx, bill.ID, req.Amount, status, paidAt); err != nil {
			return err
		}
		if err := s.repo.InsertTransaction(ctx, tx, &ledgerdomain.TransactionRecord{
			ID:          s.genID.Generate(),
			TenantID:    req.TenantID,
			BillID:      req.BillID,
			Amount:      req.Amount,
			ForMonth:    bill.ForMonth,
			ForYear:     bill.ForYear,
			ProviderRef: strings.TrimSpace(req.ProviderRef),
			PaymentDate: paidAt,
			CreatedAt:   paidAt,
		}); err != nil {
			return err
		}

		updated := *bill
		updated.PaidAmount = newPaid
		updated.Status = status
		updated.LastPaymentDate = &paidAt
		result = ledgerdomain.ApplyPaymentResult{Applied: true, Bill: updated}
		return nil
	})
	if err != nil {
		return ledgerdomain.ApplyPaymentResult{}, err
	}

	if result.Applied {
		s.obsMetrics.IncSettlement("applied")
		s.log.Info("payment credited",
			zap.Int64("tenant_id", int64(req.TenantID)),
			zap.Int64("bill_id", int64(req.BillID)),
			zap.Int64("amount", req.Amount),
			zap.String("provider_ref", req.ProviderRef),
		)
	} else {
		s.obsMetrics.IncSettlement("replayed")
		s.log.Info("payment credit replay ignored",
			zap.Int64("bill_id", int64(req.BillID)),
			zap.String("provider_ref", req.ProviderRef),
		)
	}
	return result, nil
}

func (s *Service) loadRecords(ctx context.Context, tenantID snowflake.ID) ([]ledgerdomain.LedgerRecord, []ledgerdomain.Bill, error) {
	bills, err := s.repo.ListBills(ctx, s.db, tenantID)
	if err != nil {
		return nil, nil, err
	}
	transactions, err := s.repo.ListTransactions(ctx, s.db, tenantID)
	if err != nil {
		return nil, nil, err
	}

	records := make([]ledgerdomain.LedgerRecord, 0, len(bills)+len(transactions))
	for _, b := range bills {
		records = append(records, ledgerdomain.RecordFromBill(b))
	}
	for _, t := range transactions {
		records = append(records, ledgerdomain.RecordFromTransaction(t))
	}
	return records, bills, nil
}

// logWarnings surfaces malformed rows without failing the aggregate.
func (s *Service) logWarnings(ctx context.Context, tenantID snowflake.ID, warnings []allocation.Warning) {
	_ = ctx
	for _, w := range warnings {
		s.obsMetrics.IncIntegrityWarning()
		s.log.Warn("ledger row skipped",
			zap.Int64("tenant_id", int64(tenantID)),
			zap.Int64("bill_id", int64(w.BillID)),
			zap.String("reason", w.Reason),
		)
	}
}
