package allocation

import (
	"testing"
	"time"

	ledgerdomain "github.com/rentease/rentledger/internal/ledger/domain"
)

func bill(month, year int, baseRent, utilities, paid int64) ledgerdomain.LedgerRecord {
	return ledgerdomain.LedgerRecord{
		Kind:        ledgerdomain.RecordKindBill,
		ForMonth:    month,
		ForYear:     year,
		BaseRent:    baseRent,
		UtilityCost: utilities,
		PaidAmount:  paid,
	}
}

func billPaidOn(month, year int, baseRent, utilities, paid int64, paidOn time.Time) ledgerdomain.LedgerRecord {
	b := bill(month, year, baseRent, utilities, paid)
	b.LastPaymentDate = &paidOn
	return b
}

func TestBalance(t *testing.T) {
	b := bill(3, 2025, 20000, 2000, 20000)
	if got := Balance(b); got != 2000 {
		t.Fatalf("balance = %d, want 2000", got)
	}
}

func TestBalanceNegativeIsCredit(t *testing.T) {
	b := bill(3, 2025, 20000, 0, 25000)
	if got := Balance(b); got != -5000 {
		t.Fatalf("balance = %d, want -5000", got)
	}
}

func TestExpectedWithRentOverride(t *testing.T) {
	b := bill(3, 2025, 18000, 2000, 0)
	if got := ExpectedWithRent(b, 21000); got != 23000 {
		t.Fatalf("expected = %d, want 23000", got)
	}
}

func TestOutstandingSumNeverNegative(t *testing.T) {
	cases := [][]ledgerdomain.LedgerRecord{
		nil,
		{bill(1, 2025, 20000, 0, 25000)},
		{bill(1, 2025, 20000, 0, 25000), bill(2, 2025, 20000, 0, 30000)},
		{bill(1, 2025, 20000, 0, 0), bill(2, 2025, 20000, 0, 40000)},
	}
	for i, records := range cases {
		if got := OutstandingSum(records, nil); got.Outstanding < 0 {
			t.Fatalf("case %d: outstanding = %d, want >= 0", i, got.Outstanding)
		}
	}
}

func TestOutstandingSumSeparatesCredit(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(1, 2025, 20000, 0, 15000),  // 5000 in arrears
		bill(2, 2025, 20000, 0, 23000),  // 3000 credit
	}
	got := OutstandingSum(records, nil)
	if got.Outstanding != 5000 {
		t.Fatalf("outstanding = %d, want 5000", got.Outstanding)
	}
	if got.Credit != -3000 {
		t.Fatalf("credit = %d, want -3000", got.Credit)
	}
}

func TestOutstandingSumIgnoresTransactions(t *testing.T) {
	paidOn := time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC)
	records := []ledgerdomain.LedgerRecord{
		bill(1, 2025, 20000, 0, 15000),
		{
			Kind:        ledgerdomain.RecordKindTransaction,
			ForMonth:    1,
			ForYear:     2025,
			Amount:      99999,
			PaymentDate: &paidOn,
		},
	}
	got := OutstandingSum(records, nil)
	if got.Outstanding != 5000 {
		t.Fatalf("outstanding = %d, want 5000 (receipt must not be aggregated)", got.Outstanding)
	}
}

func TestDedupKeepsMostRecentlyPaidBill(t *testing.T) {
	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	records := []ledgerdomain.LedgerRecord{
		billPaidOn(3, 2025, 20000, 0, 5000, older),
		billPaidOn(3, 2025, 20000, 0, 18000, newer),
	}
	got := OutstandingSum(records, nil)
	if got.Outstanding != 2000 {
		t.Fatalf("outstanding = %d, want 2000 (only the newer duplicate counts)", got.Outstanding)
	}

	// Order of the duplicates must not matter.
	got = OutstandingSum([]ledgerdomain.LedgerRecord{records[1], records[0]}, nil)
	if got.Outstanding != 2000 {
		t.Fatalf("outstanding = %d, want 2000 regardless of record order", got.Outstanding)
	}
}

func TestDedupPrefersDatedBillOverUndated(t *testing.T) {
	paidOn := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	records := []ledgerdomain.LedgerRecord{
		billPaidOn(3, 2025, 20000, 0, 20000, paidOn),
		bill(3, 2025, 20000, 0, 0),
	}
	got := OutstandingSum(records, nil)
	if got.Outstanding != 0 {
		t.Fatalf("outstanding = %d, want 0", got.Outstanding)
	}
}

func TestMalformedRowsSkippedWithWarning(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(0, 2025, 20000, 0, 0), // missing month
		bill(2, 0, 20000, 0, 0),    // missing year
		bill(3, 2025, 20000, 0, 15000),
	}
	got := OutstandingSum(records, nil)
	if len(got.Warnings) != 2 {
		t.Fatalf("warnings = %d, want 2", len(got.Warnings))
	}
	if got.Outstanding != 5000 {
		t.Fatalf("outstanding = %d, want 5000 over remaining valid rows", got.Outstanding)
	}
}

func TestExpectedForMonthCarriesArrears(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(2, 2025, 15000, 0, 10000), // 5000 unpaid
		bill(3, 2025, 18000, 2000, 0),  // current month expected 20000
	}
	got, _ := ExpectedForMonth(records, 3, 2025, nil)
	if got != 25000 {
		t.Fatalf("expectedForMonth = %d, want 25000", got)
	}
}

func TestExpectedForMonthNoBillNoObligation(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(2, 2025, 15000, 0, 0),
	}
	got, _ := ExpectedForMonth(records, 4, 2025, nil)
	if got != 0 {
		t.Fatalf("expectedForMonth = %d, want 0 when the month has no bill", got)
	}
}

func TestExpectedForMonthIgnoresCreditMonths(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(1, 2025, 20000, 0, 25000), // overpaid, must not reduce carryover
		bill(2, 2025, 20000, 0, 10000), // 10000 unpaid
		bill(3, 2025, 20000, 0, 0),
	}
	got, _ := ExpectedForMonth(records, 3, 2025, nil)
	if got != 30000 {
		t.Fatalf("expectedForMonth = %d, want 30000 (credit never offsets arrears)", got)
	}
}

func TestExpectedForMonthYearBoundary(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(12, 2024, 20000, 0, 12000), // 8000 unpaid in December
		bill(1, 2025, 20000, 0, 0),
	}
	got, _ := ExpectedForMonth(records, 1, 2025, nil)
	if got != 28000 {
		t.Fatalf("expectedForMonth = %d, want 28000 across the year boundary", got)
	}
}

func TestBalanceForMonth(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(2, 2025, 15000, 0, 10000),
		bill(3, 2025, 18000, 2000, 7000),
	}
	got, _ := BalanceForMonth(records, 3, 2025, nil)
	if got != 18000 {
		t.Fatalf("balanceForMonth = %d, want 18000", got)
	}
}

func TestCarryover(t *testing.T) {
	records := []ledgerdomain.LedgerRecord{
		bill(2, 2025, 15000, 0, 10000),
		bill(3, 2025, 18000, 2000, 0),
	}
	got, _ := Carryover(records, 3, 2025, nil)
	if got != 5000 {
		t.Fatalf("carryover = %d, want 5000", got)
	}
}

func TestAggregateRentOverrideAppliedUniformly(t *testing.T) {
	override := int64(25000)
	records := []ledgerdomain.LedgerRecord{
		bill(2, 2025, 15000, 0, 10000), // with override: 15000 unpaid
		bill(3, 2025, 18000, 2000, 0),  // with override: 27000 expected
	}
	got, _ := ExpectedForMonth(records, 3, 2025, &override)
	if got != 42000 {
		t.Fatalf("expectedForMonth = %d, want 42000 under uniform override", got)
	}
}
