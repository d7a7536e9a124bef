// Package allocation computes expected amounts, balances and
// month-over-month arrears carryover over a tenant's ledger records.
// Everything here is pure: no I/O, no clock, no mutation of inputs.
package allocation

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/rentease/rentledger/internal/ledger/domain"
)

// Warning flags a malformed ledger row that was skipped. Aggregates never
// fail on bad rows; callers decide whether to log or count them.
type Warning struct {
	BillID snowflake.ID
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("bill %d skipped: %s", w.BillID, w.Reason)
}

// Summary is the aggregate position over a deduplicated bill set.
// Outstanding clamps each bill's balance at zero; Credit collects the
// negative balances (overpayments) as a separate signed total.
type Summary struct {
	Outstanding int64
	Credit      int64
	Warnings    []Warning
}

// Expected returns the bill's total obligation. The canonical rule is
// base rent plus utilities; there is no mode where the rent field
// already includes utilities.
func Expected(r ledgerdomain.LedgerRecord) int64 {
	return r.BaseRent + r.UtilityCost
}

// ExpectedWithRent computes the obligation from an authoritative base
// rent held outside the bill (the tenancy agreement), plus the bill's
// utilities. Callers must not mix this with Expected over one aggregate;
// the aggregate functions apply an override uniformly.
func ExpectedWithRent(r ledgerdomain.LedgerRecord, baseRent int64) int64 {
	return baseRent + r.UtilityCost
}

// Paid returns the bill's cumulative paid amount.
func Paid(r ledgerdomain.LedgerRecord) int64 {
	return r.PaidAmount
}

// Balance returns expected minus paid. Negative means credit.
func Balance(r ledgerdomain.LedgerRecord) int64 {
	return Expected(r) - Paid(r)
}

// BalanceWithRent is Balance under an explicit base rent.
func BalanceWithRent(r ledgerdomain.LedgerRecord, baseRent int64) int64 {
	return ExpectedWithRent(r, baseRent) - Paid(r)
}

func expectedOf(r ledgerdomain.LedgerRecord, rentOverride *int64) int64 {
	if rentOverride != nil {
		return ExpectedWithRent(r, *rentOverride)
	}
	return Expected(r)
}

func balanceOf(r ledgerdomain.LedgerRecord, rentOverride *int64) int64 {
	return expectedOf(r, rentOverride) - Paid(r)
}

// OutstandingSum filters receipts out by their kind tag, drops malformed
// rows, deduplicates per (month, year) keeping the most recently paid
// bill, and sums the positive balances. The result is never negative.
func OutstandingSum(records []ledgerdomain.LedgerRecord, rentOverride *int64) Summary {
	bills, warnings := dedupeBills(records)

	summary := Summary{Warnings: warnings}
	for _, b := range bills {
		balance := balanceOf(b, rentOverride)
		if balance > 0 {
			summary.Outstanding += balance
		} else {
			summary.Credit += balance
		}
	}
	return summary
}

// ExpectedForMonth returns the current month's obligation with all unpaid
// prior balances carried forward. A month with no bill has no obligation
// yet, so the result is zero regardless of history.
func ExpectedForMonth(records []ledgerdomain.LedgerRecord, month, year int, rentOverride *int64) (int64, []Warning) {
	bills, warnings := dedupeBills(records)

	target := monthKey(month, year)
	var current *ledgerdomain.LedgerRecord
	for i := range bills {
		if monthKey(bills[i].ForMonth, bills[i].ForYear) == target {
			current = &bills[i]
			break
		}
	}
	if current == nil {
		return 0, warnings
	}

	expected := expectedOf(*current, rentOverride)
	for _, b := range bills {
		if monthKey(b.ForMonth, b.ForYear) >= target {
			continue
		}
		if balance := balanceOf(b, rentOverride); balance > 0 {
			expected += balance
		}
	}
	return expected, warnings
}

// BalanceForMonth is ExpectedForMonth minus the current bill's paid
// amount.
func BalanceForMonth(records []ledgerdomain.LedgerRecord, month, year int, rentOverride *int64) (int64, []Warning) {
	expected, warnings := ExpectedForMonth(records, month, year, rentOverride)

	target := monthKey(month, year)
	var paid int64
	bills, _ := dedupeBills(records)
	for _, b := range bills {
		if monthKey(b.ForMonth, b.ForYear) == target {
			paid = Paid(b)
			break
		}
	}
	return expected - paid, warnings
}

// Carryover is the arrears portion folded into the given month: the
// month's full expected amount minus the bill's own expected amount.
func Carryover(records []ledgerdomain.LedgerRecord, month, year int, rentOverride *int64) (int64, []Warning) {
	expected, warnings := ExpectedForMonth(records, month, year, rentOverride)
	if expected == 0 {
		return 0, warnings
	}

	target := monthKey(month, year)
	bills, _ := dedupeBills(records)
	for _, b := range bills {
		if monthKey(b.ForMonth, b.ForYear) == target {
			return expected - expectedOf(b, rentOverride), warnings
		}
	}
	return 0, warnings
}

// dedupeBills drops receipts and malformed rows, then keeps exactly one
// bill per (month, year): the one with the most recent LastPaymentDate.
// Bills are returned ordered by (year, month) ascending.
func dedupeBills(records []ledgerdomain.LedgerRecord) ([]ledgerdomain.LedgerRecord, []Warning) {
	var warnings []Warning
	byMonth := make(map[int]ledgerdomain.LedgerRecord)
	var order []int

	for _, r := range records {
		if r.Kind != ledgerdomain.RecordKindBill {
			continue
		}
		if r.ForMonth < 1 || r.ForMonth > 12 || r.ForYear <= 0 {
			warnings = append(warnings, Warning{
				BillID: r.BillID,
				Reason: fmt.Sprintf("invalid period %d/%d", r.ForMonth, r.ForYear),
			})
			continue
		}

		key := monthKey(r.ForMonth, r.ForYear)
		existing, ok := byMonth[key]
		if !ok {
			byMonth[key] = r
			order = append(order, key)
			continue
		}
		if paymentDateAfter(r.LastPaymentDate, existing.LastPaymentDate) {
			byMonth[key] = r
		}
	}

	sort.Ints(order)
	bills := make([]ledgerdomain.LedgerRecord, 0, len(order))
	for _, key := range order {
		bills = append(bills, byMonth[key])
	}
	return bills, warnings
}

// paymentDateAfter reports whether a is strictly more recent than b; a
// nil date never wins.
func paymentDateAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

func monthKey(month, year int) int {
	return year*100 + month
}
