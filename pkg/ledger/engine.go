package ledger

import (
	"sort"
	"strconv"
	"time"

	"github.com/mcclellann/fundLedger/pkg/models"
	"github.com/shopspring/decimal"
)

// DefaultInterestRatePercent is the flat monthly interest charged on the
// outstanding loan principal, applied to every unpaid installment.
const DefaultInterestRatePercent = 3

var hundred = decimal.NewFromInt(100)

// InterestPolicy decides the per-installment interest for a principal.
type InterestPolicy struct {
	RatePercent decimal.Decimal
}

// DefaultInterestPolicy returns the 3% flat-rate policy.
func DefaultInterestPolicy() InterestPolicy {
	return InterestPolicy{RatePercent: decimal.NewFromInt(DefaultInterestRatePercent)}
}

// Interest returns round2(principal * rate / 100).
func (p InterestPolicy) Interest(principal decimal.Decimal) decimal.Decimal {
	return round2(principal.Mul(p.RatePercent).Div(hundred))
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func hasAtMostTwoPlaces(d decimal.Decimal) bool {
	return d.Equal(round2(d))
}

// DeriveStatus returns the status implied by the installment's amounts.
func DeriveStatus(inst models.Installment) models.PaymentStatus {
	switch {
	case inst.BalanceAmount.IsZero():
		return models.PaymentStatusPaid
	case inst.PaidAmount.IsPositive():
		return models.PaymentStatusPartial
	default:
		return models.PaymentStatusPending
	}
}

// recalculate refreshes total, balance and status from the amount fields.
func recalculate(inst *models.Installment) {
	inst.Total = round2(inst.DueAmount.Add(inst.LoanInterest))
	inst.BalanceAmount = clampZero(round2(inst.Total.Sub(inst.PaidAmount)))
	inst.PaymentStatus = DeriveStatus(*inst)
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func installmentNotFound(dueNo int) error {
	return &NotFoundError{Kind: "installment", Key: strconv.Itoa(dueNo)}
}

// CollectPayment applies amount to one installment and credits the fund.
// The returned account is a new copy; acct is left untouched.
func CollectPayment(acct *models.Account, dueNo int, amount decimal.Decimal, now time.Time) (*models.Account, error) {
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}
	if !hasAtMostTwoPlaces(amount) {
		return nil, invalid("amount", "must have at most two decimal places")
	}

	staged := acct.Clone()
	inst, ok := staged.Installment(dueNo)
	if !ok {
		return nil, installmentNotFound(dueNo)
	}
	if amount.GreaterThan(inst.BalanceAmount) {
		return nil, invalid("amount", "%s exceeds remaining balance of %s", amount.StringFixed(2), inst.BalanceAmount.StringFixed(2))
	}

	inst.PaidAmount = round2(inst.PaidAmount.Add(amount))
	inst.BalanceAmount = clampZero(round2(inst.Total.Sub(inst.PaidAmount)))
	if inst.BalanceAmount.IsZero() {
		inst.PaymentStatus = models.PaymentStatusPaid
	} else if inst.PaidAmount.IsPositive() {
		inst.PaymentStatus = models.PaymentStatusPartial
	}
	collected := now
	inst.CollectedOn = &collected

	staged.FundAmount = round2(staged.FundAmount.Add(amount))
	return staged, nil
}

// LoanChange is an administrative correction of the outstanding principal.
type LoanChange struct {
	NewLoanAmount decimal.Decimal
	UpdatedBy     string
	Reason        string
}

// ChangeLoanPrincipal sets the principal, re-prices every unpaid installment
// and appends a loan history entry. Returns ErrNoChange when the amount is
// already current.
func ChangeLoanPrincipal(acct *models.Account, change LoanChange, policy InterestPolicy, now time.Time) (*models.Account, error) {
	if change.NewLoanAmount.IsNegative() {
		return nil, invalid("loan_amount", "must not be negative")
	}
	if !hasAtMostTwoPlaces(change.NewLoanAmount) {
		return nil, invalid("loan_amount", "must have at most two decimal places")
	}
	if change.NewLoanAmount.Equal(acct.LoanAmount) {
		return nil, ErrNoChange
	}

	staged := acct.Clone()
	applyPrincipal(staged, change.NewLoanAmount, policy)
	staged.LoanHistory = append(staged.LoanHistory, models.LoanHistoryEntry{
		UpdatedAt:     now,
		UpdatedBy:     change.UpdatedBy,
		OldLoanAmount: acct.LoanAmount,
		NewLoanAmount: change.NewLoanAmount,
		Reason:        change.Reason,
	})
	return staged, nil
}

// Repayment is a principal repayment made by the member.
type Repayment struct {
	Amount decimal.Decimal
	Date   models.DueDate // zero means the day of now
	Notes  string
}

// RepayLoanPrincipal reduces the principal by the repayment, re-prices every
// unpaid installment and records the repayment.
func RepayLoanPrincipal(acct *models.Account, repayment Repayment, policy InterestPolicy, now time.Time) (*models.Account, error) {
	if !repayment.Amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}
	if !hasAtMostTwoPlaces(repayment.Amount) {
		return nil, invalid("amount", "must have at most two decimal places")
	}
	if repayment.Amount.GreaterThan(acct.LoanAmount) {
		return nil, invalid("amount", "%s exceeds outstanding balance of %s", repayment.Amount.StringFixed(2), acct.LoanAmount.StringFixed(2))
	}

	date := repayment.Date
	if date.IsZero() {
		date = models.NewDueDate(now)
	}

	staged := acct.Clone()
	applyPrincipal(staged, acct.LoanAmount.Sub(repayment.Amount), policy)
	staged.LoanRepaymentHistory = append(staged.LoanRepaymentHistory, models.RepaymentEntry{
		Date:      date,
		Amount:    repayment.Amount,
		Notes:     repayment.Notes,
		Timestamp: now,
	})
	return staged, nil
}

func applyPrincipal(acct *models.Account, principal decimal.Decimal, policy InterestPolicy) {
	interest := policy.Interest(principal)
	for i := range acct.DuePayments {
		inst := &acct.DuePayments[i]
		if inst.PaymentStatus == models.PaymentStatusPaid {
			continue
		}
		inst.LoanInterest = interest
		recalculate(inst)
	}
	acct.LoanAmount = principal
}

// DueUpdate edits the principal and interest portions of installments.
type DueUpdate struct {
	DueNo        int
	DueAmount    decimal.Decimal
	LoanInterest decimal.Decimal
	ApplyToAll   bool
}

// UpdateDue sets due and interest amounts on one installment, or on every
// installment when ApplyToAll is set, and re-derives the rest.
func UpdateDue(acct *models.Account, update DueUpdate) (*models.Account, error) {
	if update.DueAmount.IsNegative() {
		return nil, invalid("due_amount", "must not be negative")
	}
	if update.LoanInterest.IsNegative() {
		return nil, invalid("loan_interest", "must not be negative")
	}
	if !hasAtMostTwoPlaces(update.DueAmount) {
		return nil, invalid("due_amount", "must have at most two decimal places")
	}
	if !hasAtMostTwoPlaces(update.LoanInterest) {
		return nil, invalid("loan_interest", "must have at most two decimal places")
	}

	staged := acct.Clone()
	if update.ApplyToAll {
		for i := range staged.DuePayments {
			staged.DuePayments[i].DueAmount = update.DueAmount
			staged.DuePayments[i].LoanInterest = update.LoanInterest
			recalculate(&staged.DuePayments[i])
		}
		return staged, nil
	}

	inst, ok := staged.Installment(update.DueNo)
	if !ok {
		return nil, installmentNotFound(update.DueNo)
	}
	inst.DueAmount = update.DueAmount
	inst.LoanInterest = update.LoanInterest
	recalculate(inst)
	return staged, nil
}

// ReplaceSchedule swaps in an imported set of installments, ordered by due number.
// The installments are expected to have passed ValidateInstallments.
func ReplaceSchedule(acct *models.Account, installments []models.Installment) *models.Account {
	staged := acct.Clone()
	staged.DuePayments = append([]models.Installment(nil), installments...)
	sort.SliceStable(staged.DuePayments, func(i, j int) bool {
		return staged.DuePayments[i].DueNo < staged.DuePayments[j].DueNo
	})
	return staged
}

// MarkOverdue flags pending installments due before the current month.
// Partial and paid installments keep their status.
func MarkOverdue(acct *models.Account, now time.Time) (*models.Account, int) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	staged := acct.Clone()
	changed := 0
	for i := range staged.DuePayments {
		inst := &staged.DuePayments[i]
		if inst.PaymentStatus != models.PaymentStatusPending || inst.DueDate.IsZero() {
			continue
		}
		if inst.DueDate.Before(monthStart) && inst.BalanceAmount.IsPositive() {
			inst.PaymentStatus = models.PaymentStatusOverdue
			changed++
		}
	}
	return staged, changed
}

// IsCollectible reports whether the installment is due in now's month.
// It is a presentation filter and is not enforced by CollectPayment.
func IsCollectible(inst models.Installment, now time.Time) bool {
	return !inst.DueDate.IsZero() && inst.DueDate.SameMonth(now)
}

// NewSchedule returns n pending installments with zero amounts, the i-th due
// i months after start.
func NewSchedule(n int, start time.Time) []models.Installment {
	schedule := make([]models.Installment, 0, n)
	for i := 1; i <= n; i++ {
		schedule = append(schedule, models.Installment{
			DueNo:         i,
			DueDate:       models.NewDueDate(start.AddDate(0, i, 0)),
			DueAmount:     decimal.Zero,
			LoanInterest:  decimal.Zero,
			Total:         decimal.Zero,
			PaidAmount:    decimal.Zero,
			BalanceAmount: decimal.Zero,
			PaymentStatus: models.PaymentStatusPending,
		})
	}
	return schedule
}
