package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/mcclellann/fundLedger/pkg/models"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, time.October, 15, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pendingInstallment(dueNo int, dueAmount string) models.Installment {
	inst := models.Installment{
		DueNo:        dueNo,
		DueDate:      models.NewDueDate(testNow.AddDate(0, dueNo-1, 0)),
		DueAmount:    dec(dueAmount),
		LoanInterest: decimal.Zero,
		PaidAmount:   decimal.Zero,
	}
	recalculate(&inst)
	return inst
}

func testAccount(loan string, installments ...models.Installment) *models.Account {
	return &models.Account{
		Account:     "AZH-001",
		Name:        "Test Member",
		FundAmount:  decimal.Zero,
		LoanAmount:  dec(loan),
		DuePayments: installments,
	}
}

func assertInvariants(t *testing.T, acct *models.Account) {
	t.Helper()
	for _, inst := range acct.DuePayments {
		if !inst.Total.Equal(round2(inst.DueAmount.Add(inst.LoanInterest))) {
			t.Errorf("due %d: total %s != due %s + interest %s", inst.DueNo, inst.Total, inst.DueAmount, inst.LoanInterest)
		}
		expectedBalance := clampZero(round2(inst.Total.Sub(inst.PaidAmount)))
		if !inst.BalanceAmount.Equal(expectedBalance) {
			t.Errorf("due %d: balance %s, expected %s", inst.DueNo, inst.BalanceAmount, expectedBalance)
		}
		if inst.BalanceAmount.IsNegative() {
			t.Errorf("due %d: negative balance %s", inst.DueNo, inst.BalanceAmount)
		}
	}
}

func TestChangeLoanPrincipal_RepricesPendingInstallment(t *testing.T) {
	acct := testAccount("10000", pendingInstallment(1, "500"))

	updated, err := ChangeLoanPrincipal(acct, LoanChange{NewLoanAmount: dec("12000"), UpdatedBy: "admin"}, DefaultInterestPolicy(), testNow)
	if err != nil {
		t.Fatalf("ChangeLoanPrincipal failed: %v", err)
	}

	inst := updated.DuePayments[0]
	if !inst.LoanInterest.Equal(dec("360")) {
		t.Errorf("Expected interest 360.00, got %s", inst.LoanInterest)
	}
	if !inst.Total.Equal(dec("860")) {
		t.Errorf("Expected total 860.00, got %s", inst.Total)
	}
	if !inst.BalanceAmount.Equal(dec("860")) {
		t.Errorf("Expected balance 860.00, got %s", inst.BalanceAmount)
	}
	if inst.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("Expected status pending, got %s", inst.PaymentStatus)
	}
	if !updated.LoanAmount.Equal(dec("12000")) {
		t.Errorf("Expected loan 12000, got %s", updated.LoanAmount)
	}
	if len(updated.LoanHistory) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(updated.LoanHistory))
	}
	h := updated.LoanHistory[0]
	if !h.OldLoanAmount.Equal(dec("10000")) || !h.NewLoanAmount.Equal(dec("12000")) || h.UpdatedBy != "admin" {
		t.Errorf("Unexpected history entry %+v", h)
	}
	assertInvariants(t, updated)

	// The input must not have been touched.
	if !acct.LoanAmount.Equal(dec("10000")) || !acct.DuePayments[0].LoanInterest.IsZero() {
		t.Error("ChangeLoanPrincipal mutated its input")
	}
}

func TestChangeLoanPrincipal_LeavesPaidInstallments(t *testing.T) {
	paid := pendingInstallment(1, "500")
	paid.PaidAmount = dec("500")
	recalculate(&paid)
	partial := pendingInstallment(2, "500")
	partial.PaidAmount = dec("200")
	recalculate(&partial)
	acct := testAccount("0", paid, partial, pendingInstallment(3, "500"))

	updated, err := ChangeLoanPrincipal(acct, LoanChange{NewLoanAmount: dec("1000")}, DefaultInterestPolicy(), testNow)
	if err != nil {
		t.Fatalf("ChangeLoanPrincipal failed: %v", err)
	}

	if !updated.DuePayments[0].LoanInterest.IsZero() || updated.DuePayments[0].PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Paid installment changed: %+v", updated.DuePayments[0])
	}
	p := updated.DuePayments[1]
	if !p.LoanInterest.Equal(dec("30")) || !p.BalanceAmount.Equal(dec("330")) || p.PaymentStatus != models.PaymentStatusPartial {
		t.Errorf("Unexpected partial installment %+v", p)
	}
	if updated.DuePayments[2].PaymentStatus != models.PaymentStatusPending {
		t.Errorf("Expected pending, got %s", updated.DuePayments[2].PaymentStatus)
	}
	assertInvariants(t, updated)
}

func TestChangeLoanPrincipal_Guards(t *testing.T) {
	acct := testAccount("10000", pendingInstallment(1, "500"))

	_, err := ChangeLoanPrincipal(acct, LoanChange{NewLoanAmount: dec("-1")}, DefaultInterestPolicy(), testNow)
	if !IsValidation(err) {
		t.Errorf("Expected validation error for negative amount, got %v", err)
	}

	updated, err := ChangeLoanPrincipal(acct, LoanChange{NewLoanAmount: dec("12000")}, DefaultInterestPolicy(), testNow)
	if err != nil {
		t.Fatalf("ChangeLoanPrincipal failed: %v", err)
	}
	again, err := ChangeLoanPrincipal(updated, LoanChange{NewLoanAmount: dec("12000")}, DefaultInterestPolicy(), testNow)
	if !errors.Is(err, ErrNoChange) {
		t.Errorf("Expected ErrNoChange, got %v", err)
	}
	if again != nil {
		t.Error("Expected no account on no-op")
	}
	if len(updated.LoanHistory) != 1 {
		t.Errorf("Expected history to stay at 1 entry, got %d", len(updated.LoanHistory))
	}
}

func TestInterestPolicy_Configurable(t *testing.T) {
	policy := InterestPolicy{RatePercent: dec("2.5")}
	if got := policy.Interest(dec("1001")); !got.Equal(dec("25.03")) {
		t.Errorf("Expected 25.03, got %s", got)
	}
	if got := DefaultInterestPolicy().Interest(dec("12000")); !got.Equal(dec("360")) {
		t.Errorf("Expected 360, got %s", got)
	}
}

func TestCollectPayment_Full(t *testing.T) {
	inst := pendingInstallment(1, "500")
	inst.LoanInterest = dec("360")
	recalculate(&inst)
	acct := testAccount("12000", inst)
	acct.FundAmount = dec("100")

	updated, err := CollectPayment(acct, 1, dec("860"), testNow)
	if err != nil {
		t.Fatalf("CollectPayment failed: %v", err)
	}

	got := updated.DuePayments[0]
	if !got.PaidAmount.Equal(dec("860")) || !got.BalanceAmount.IsZero() || got.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Unexpected installment after full payment: %+v", got)
	}
	if !updated.FundAmount.Equal(dec("960")) {
		t.Errorf("Expected fund 960, got %s", updated.FundAmount)
	}
	if got.CollectedOn == nil || !got.CollectedOn.Equal(testNow) {
		t.Errorf("Expected collected_on %v, got %v", testNow, got.CollectedOn)
	}
	assertInvariants(t, updated)
}

func TestCollectPayment_PartialThenOverpay(t *testing.T) {
	inst := pendingInstallment(1, "500")
	inst.LoanInterest = dec("360")
	recalculate(&inst)
	acct := testAccount("12000", inst, pendingInstallment(2, "500"))

	updated, err := CollectPayment(acct, 1, dec("500"), testNow)
	if err != nil {
		t.Fatalf("CollectPayment failed: %v", err)
	}
	got := updated.DuePayments[0]
	if !got.PaidAmount.Equal(dec("500")) || !got.BalanceAmount.Equal(dec("360")) || got.PaymentStatus != models.PaymentStatusPartial {
		t.Errorf("Unexpected installment after partial payment: %+v", got)
	}
	if updated.DuePayments[1].PaymentStatus != models.PaymentStatusPending || updated.DuePayments[1].CollectedOn != nil {
		t.Error("Untargeted installment changed")
	}

	_, err = CollectPayment(updated, 1, dec("1000"), testNow)
	if !IsValidation(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	// Nothing changed on the rejected attempt.
	if !updated.DuePayments[0].PaidAmount.Equal(dec("500")) || !updated.FundAmount.Equal(dec("500")) {
		t.Error("Rejected payment mutated the account")
	}
}

func TestCollectPayment_Rejections(t *testing.T) {
	acct := testAccount("0", pendingInstallment(1, "500"))

	tests := []struct {
		name     string
		dueNo    int
		amount   string
		notFound bool
	}{
		{"zero amount", 1, "0", false},
		{"negative amount", 1, "-5", false},
		{"fractional cents", 1, "10.005", false},
		{"missing installment", 7, "10", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CollectPayment(acct, tt.dueNo, dec(tt.amount), testNow)
			if tt.notFound && !IsNotFound(err) {
				t.Errorf("Expected not found, got %v", err)
			}
			if !tt.notFound && !IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestCollectPayment_Monotonic(t *testing.T) {
	acct := testAccount("0", pendingInstallment(1, "1000"))
	prevPaid, prevFund := decimal.Zero, decimal.Zero
	for _, amount := range []string{"100", "250.50", "0.01", "649.49"} {
		next, err := CollectPayment(acct, 1, dec(amount), testNow)
		if err != nil {
			t.Fatalf("CollectPayment(%s) failed: %v", amount, err)
		}
		inst := next.DuePayments[0]
		if inst.PaidAmount.LessThan(prevPaid) || next.FundAmount.LessThan(prevFund) {
			t.Errorf("paid or fund decreased after collecting %s", amount)
		}
		prevPaid, prevFund = inst.PaidAmount, next.FundAmount
		assertInvariants(t, next)
		acct = next
	}
	if acct.DuePayments[0].PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Expected paid, got %s", acct.DuePayments[0].PaymentStatus)
	}
}

func TestCollectPayment_OverdueBecomesPartial(t *testing.T) {
	inst := pendingInstallment(1, "500")
	inst.PaymentStatus = models.PaymentStatusOverdue
	acct := testAccount("0", inst)

	updated, err := CollectPayment(acct, 1, dec("100"), testNow)
	if err != nil {
		t.Fatalf("CollectPayment failed: %v", err)
	}
	if updated.DuePayments[0].PaymentStatus != models.PaymentStatusPartial {
		t.Errorf("Expected partial, got %s", updated.DuePayments[0].PaymentStatus)
	}
}

func TestRepayLoanPrincipal(t *testing.T) {
	acct := testAccount("10000", pendingInstallment(1, "500"), pendingInstallment(2, "500"))

	updated, err := RepayLoanPrincipal(acct, Repayment{Amount: dec("4000"), Notes: "cash"}, DefaultInterestPolicy(), testNow)
	if err != nil {
		t.Fatalf("RepayLoanPrincipal failed: %v", err)
	}
	if !updated.LoanAmount.Add(dec("4000")).Equal(acct.LoanAmount) {
		t.Errorf("Conservation broken: %s + 4000 != %s", updated.LoanAmount, acct.LoanAmount)
	}
	for _, inst := range updated.DuePayments {
		if !inst.LoanInterest.Equal(dec("180")) || !inst.Total.Equal(dec("680")) {
			t.Errorf("due %d: unexpected interest %s total %s", inst.DueNo, inst.LoanInterest, inst.Total)
		}
	}
	if len(updated.LoanHistory) != 0 {
		t.Errorf("Repayment must not append loan history, got %d", len(updated.LoanHistory))
	}
	if len(updated.LoanRepaymentHistory) != 1 {
		t.Fatalf("Expected 1 repayment entry, got %d", len(updated.LoanRepaymentHistory))
	}
	entry := updated.LoanRepaymentHistory[0]
	if !entry.Amount.Equal(dec("4000")) || entry.Notes != "cash" || !entry.Date.Equal(models.NewDueDate(testNow).Time) {
		t.Errorf("Unexpected repayment entry %+v", entry)
	}
	assertInvariants(t, updated)
}

func TestRepayLoanPrincipal_Rejections(t *testing.T) {
	acct := testAccount("10000", pendingInstallment(1, "500"))

	for _, amount := range []string{"15000", "0", "-1"} {
		if _, err := RepayLoanPrincipal(acct, Repayment{Amount: dec(amount)}, DefaultInterestPolicy(), testNow); !IsValidation(err) {
			t.Errorf("amount %s: expected validation error, got %v", amount, err)
		}
	}

	full, err := RepayLoanPrincipal(acct, Repayment{Amount: dec("10000")}, DefaultInterestPolicy(), testNow)
	if err != nil {
		t.Fatalf("Full repayment failed: %v", err)
	}
	if !full.LoanAmount.IsZero() || !full.DuePayments[0].LoanInterest.IsZero() {
		t.Errorf("Expected zero loan and interest, got %s / %s", full.LoanAmount, full.DuePayments[0].LoanInterest)
	}
}

func TestUpdateDue(t *testing.T) {
	paid := pendingInstallment(1, "500")
	paid.PaidAmount = dec("500")
	recalculate(&paid)
	acct := testAccount("0", paid, pendingInstallment(2, "500"))

	one, err := UpdateDue(acct, DueUpdate{DueNo: 2, DueAmount: dec("750"), LoanInterest: dec("25")})
	if err != nil {
		t.Fatalf("UpdateDue failed: %v", err)
	}
	if !one.DuePayments[1].Total.Equal(dec("775")) || !one.DuePayments[0].Total.Equal(dec("500")) {
		t.Errorf("Unexpected totals %s / %s", one.DuePayments[0].Total, one.DuePayments[1].Total)
	}

	all, err := UpdateDue(acct, DueUpdate{DueAmount: dec("600"), LoanInterest: dec("0"), ApplyToAll: true})
	if err != nil {
		t.Fatalf("UpdateDue all failed: %v", err)
	}
	first := all.DuePayments[0]
	if !first.BalanceAmount.Equal(dec("100")) || first.PaymentStatus != models.PaymentStatusPartial {
		t.Errorf("Raised total on paid due should reopen it, got %+v", first)
	}
	assertInvariants(t, all)

	if _, err := UpdateDue(acct, DueUpdate{DueNo: 9, DueAmount: dec("1")}); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := UpdateDue(acct, DueUpdate{DueNo: 1, DueAmount: dec("-1")}); !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if _, err := UpdateDue(acct, DueUpdate{DueNo: 1, DueAmount: dec("500.005")}); !IsValidation(err) {
		t.Errorf("Expected validation error for sub-cent due, got %v", err)
	}
	if _, err := UpdateDue(acct, DueUpdate{DueAmount: dec("1"), LoanInterest: dec("0.125"), ApplyToAll: true}); !IsValidation(err) {
		t.Errorf("Expected validation error for sub-cent interest, got %v", err)
	}
}

func TestMarkOverdue(t *testing.T) {
	past := pendingInstallment(1, "500")
	past.DueDate = models.NewDueDate(testNow.AddDate(0, -1, 0))
	partial := pendingInstallment(2, "500")
	partial.DueDate = past.DueDate
	partial.PaidAmount = dec("100")
	recalculate(&partial)
	current := pendingInstallment(3, "500")
	zero := pendingInstallment(4, "0")
	zero.DueDate = past.DueDate
	zero.PaymentStatus = models.PaymentStatusPending

	acct := testAccount("0", past, partial, current, zero)
	updated, changed := MarkOverdue(acct, testNow)
	if changed != 1 {
		t.Fatalf("Expected 1 change, got %d", changed)
	}
	want := []models.PaymentStatus{models.PaymentStatusOverdue, models.PaymentStatusPartial, models.PaymentStatusPending, models.PaymentStatusPending}
	for i, status := range want {
		if updated.DuePayments[i].PaymentStatus != status {
			t.Errorf("due %d: expected %s, got %s", i+1, status, updated.DuePayments[i].PaymentStatus)
		}
	}
	if acct.DuePayments[0].PaymentStatus != models.PaymentStatusPending {
		t.Error("MarkOverdue mutated its input")
	}
}

func TestIsCollectible(t *testing.T) {
	inst := pendingInstallment(1, "500")
	if !IsCollectible(inst, testNow) {
		t.Error("Expected installment due this month to be collectible")
	}
	inst.DueDate = models.NewDueDate(testNow.AddDate(1, 0, 0))
	if IsCollectible(inst, testNow) {
		t.Error("Same month next year must not be collectible")
	}
	// Collection is still allowed by the engine.
	if _, err := CollectPayment(testAccount("0", inst), 1, dec("10"), testNow); err != nil {
		t.Errorf("Engine must not enforce the collectible window: %v", err)
	}
}

func TestNewSchedule(t *testing.T) {
	start := time.Date(2025, time.January, 21, 9, 30, 0, 0, time.UTC)
	schedule := NewSchedule(DefaultInstallments, start)
	if len(schedule) != 24 {
		t.Fatalf("Expected 24 installments, got %d", len(schedule))
	}
	for i, inst := range schedule {
		if inst.DueNo != i+1 {
			t.Errorf("Expected due_no %d, got %d", i+1, inst.DueNo)
		}
		if inst.PaymentStatus != models.PaymentStatusPending || !inst.Total.IsZero() {
			t.Errorf("due %d not a fresh pending installment: %+v", inst.DueNo, inst)
		}
	}
	if got := schedule[0].DueDate.String(); got != "21 Feb 2025" {
		t.Errorf("Expected first due 21 Feb 2025, got %s", got)
	}
	if got := schedule[23].DueDate.String(); got != "21 Jan 2027" {
		t.Errorf("Expected last due 21 Jan 2027, got %s", got)
	}
}

func TestReplaceSchedule_SortsByDueNo(t *testing.T) {
	acct := testAccount("0", pendingInstallment(1, "1"))
	staged := ReplaceSchedule(acct, []models.Installment{pendingInstallment(2, "5"), pendingInstallment(1, "5")})
	if staged.DuePayments[0].DueNo != 1 || staged.DuePayments[1].DueNo != 2 {
		t.Errorf("Expected sorted schedule, got %d, %d", staged.DuePayments[0].DueNo, staged.DuePayments[1].DueNo)
	}
	if len(acct.DuePayments) != 1 {
		t.Error("ReplaceSchedule mutated its input")
	}
}
