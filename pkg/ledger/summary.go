package ledger

import (
	"sort"
	"time"

	"github.com/mcclellann/fundLedger/pkg/models"
	"github.com/shopspring/decimal"
)

// AccountTotals aggregates an account's installments.
type AccountTotals struct {
	DueAmount     decimal.Decimal `json:"due_amount"`
	LoanInterest  decimal.Decimal `json:"loan_interest"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	PendingCount  int             `json:"pending_count"`
	PartialCount  int             `json:"partial_count"`
	PaidCount     int             `json:"paid_count"`
	OverdueCount  int             `json:"overdue_count"`
}

// Totals sums the monetary fields and counts statuses across installments.
func Totals(acct *models.Account) AccountTotals {
	t := AccountTotals{
		DueAmount:     decimal.Zero,
		LoanInterest:  decimal.Zero,
		Total:         decimal.Zero,
		PaidAmount:    decimal.Zero,
		BalanceAmount: decimal.Zero,
	}
	for _, inst := range acct.DuePayments {
		t.DueAmount = t.DueAmount.Add(inst.DueAmount)
		t.LoanInterest = t.LoanInterest.Add(inst.LoanInterest)
		t.Total = t.Total.Add(inst.Total)
		t.PaidAmount = t.PaidAmount.Add(inst.PaidAmount)
		t.BalanceAmount = t.BalanceAmount.Add(inst.BalanceAmount)
		switch inst.PaymentStatus {
		case models.PaymentStatusPending:
			t.PendingCount++
		case models.PaymentStatusPartial:
			t.PartialCount++
		case models.PaymentStatusPaid:
			t.PaidCount++
		case models.PaymentStatusOverdue:
			t.OverdueCount++
		}
	}
	return t
}

// MonthStats covers installments due in a single calendar month across accounts.
// An account is in PaidAccounts only if none of its installments for the
// month is unpaid or partial, so the two lists never overlap.
type MonthStats struct {
	Year           int             `json:"year"`
	Month          time.Month      `json:"month"`
	TotalDue       decimal.Decimal `json:"total_due"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	BalanceAmount  decimal.Decimal `json:"balance_amount"`
	PaidAccounts   []string        `json:"paid_accounts"`
	UnpaidAccounts []string        `json:"unpaid_accounts"`
}

// CurrentMonth aggregates the installments that fall due in now's month.
func CurrentMonth(accounts []*models.Account, now time.Time) MonthStats {
	stats := MonthStats{
		Year:           now.Year(),
		Month:          now.Month(),
		TotalDue:       decimal.Zero,
		PaidAmount:     decimal.Zero,
		PaidAccounts:   []string{},
		UnpaidAccounts: []string{},
	}

	for _, acct := range accounts {
		hasPaid, hasUnpaid := false, false
		for _, inst := range acct.DuePayments {
			if !inst.DueDate.SameMonth(now) {
				continue
			}
			stats.TotalDue = stats.TotalDue.Add(inst.DueAmount)
			switch inst.PaymentStatus {
			case models.PaymentStatusPaid:
				stats.PaidAmount = stats.PaidAmount.Add(inst.PaidAmount)
				hasPaid = true
			case models.PaymentStatusPartial:
				stats.PaidAmount = stats.PaidAmount.Add(inst.PaidAmount)
				hasPaid = true
				hasUnpaid = true
			default:
				hasUnpaid = true
			}
		}
		switch {
		case hasUnpaid:
			stats.UnpaidAccounts = append(stats.UnpaidAccounts, acct.Account)
		case hasPaid:
			stats.PaidAccounts = append(stats.PaidAccounts, acct.Account)
		}
	}

	sort.Strings(stats.PaidAccounts)
	sort.Strings(stats.UnpaidAccounts)
	stats.BalanceAmount = stats.TotalDue.Sub(stats.PaidAmount)
	return stats
}

// DueReportRow is one account's line in a due report.
type DueReportRow struct {
	SerialNo      int                  `json:"s_no"`
	Account       string               `json:"account"`
	Name          string               `json:"name"`
	DueDate       models.DueDate       `json:"due_date"`
	DueAmount     decimal.Decimal      `json:"due_amount"`
	LoanInterest  decimal.Decimal      `json:"loan_interest"`
	TotalPayable  decimal.Decimal      `json:"total_payable"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
	BalanceAmount decimal.Decimal      `json:"balance_amount"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

// DueReport lists a single due number across all accounts.
type DueReport struct {
	DueNo         int             `json:"due_no"`
	Rows          []DueReportRow  `json:"rows"`
	DueAmount     decimal.Decimal `json:"total_due_amount"`
	LoanInterest  decimal.Decimal `json:"total_loan_interest"`
	TotalPayable  decimal.Decimal `json:"total_payable_amount"`
	PaidAmount    decimal.Decimal `json:"total_paid_amount"`
	BalanceAmount decimal.Decimal `json:"total_balance_amount"`
}

// BuildDueReport collects installment dueNo of every account, sorted by account number.
func BuildDueReport(accounts []*models.Account, dueNo int) DueReport {
	report := DueReport{
		DueNo:         dueNo,
		Rows:          []DueReportRow{},
		DueAmount:     decimal.Zero,
		LoanInterest:  decimal.Zero,
		TotalPayable:  decimal.Zero,
		PaidAmount:    decimal.Zero,
		BalanceAmount: decimal.Zero,
	}
	for _, acct := range accounts {
		inst, ok := acct.Installment(dueNo)
		if !ok {
			continue
		}
		report.Rows = append(report.Rows, DueReportRow{
			Account:       acct.Account,
			Name:          acct.Name,
			DueDate:       inst.DueDate,
			DueAmount:     inst.DueAmount,
			LoanInterest:  inst.LoanInterest,
			TotalPayable:  inst.Total,
			PaidAmount:    inst.PaidAmount,
			BalanceAmount: inst.BalanceAmount,
			PaymentStatus: inst.PaymentStatus,
		})
		report.DueAmount = report.DueAmount.Add(inst.DueAmount)
		report.LoanInterest = report.LoanInterest.Add(inst.LoanInterest)
		report.TotalPayable = report.TotalPayable.Add(inst.Total)
		report.PaidAmount = report.PaidAmount.Add(inst.PaidAmount)
		report.BalanceAmount = report.BalanceAmount.Add(inst.BalanceAmount)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].Account < report.Rows[j].Account
	})
	for i := range report.Rows {
		report.Rows[i].SerialNo = i + 1
	}
	return report
}

// Dashboard is the fund-wide overview.
type Dashboard struct {
	TotalMembers    int                   `json:"total_members"`
	TotalFundAmount decimal.Decimal       `json:"total_fund_amount"`
	TotalLoanAmount decimal.Decimal       `json:"total_loan_amount"`
	AvailableFunds  decimal.Decimal       `json:"available_funds"`
	CurrentMonth    MonthStats            `json:"current_month"`
	RecentPayments  []*models.Transaction `json:"recent_payments"`
}

// BuildDashboard computes fund totals and the current month block.
// RecentPayments is filled in by the caller from the transaction journal.
func BuildDashboard(accounts []*models.Account, now time.Time) Dashboard {
	d := Dashboard{
		TotalMembers:    len(accounts),
		TotalFundAmount: decimal.Zero,
		TotalLoanAmount: decimal.Zero,
		RecentPayments:  []*models.Transaction{},
	}
	for _, acct := range accounts {
		d.TotalFundAmount = d.TotalFundAmount.Add(acct.FundAmount)
		d.TotalLoanAmount = d.TotalLoanAmount.Add(acct.LoanAmount)
	}
	d.AvailableFunds = d.TotalFundAmount.Sub(d.TotalLoanAmount)
	d.CurrentMonth = CurrentMonth(accounts, now)
	return d
}

// Discrepancy is a stored installment value that disagrees with what the
// amounts imply. Imported data may carry these; they are reported, not fixed.
type Discrepancy struct {
	DueNo    int    `json:"due_no"`
	Field    string `json:"field"`
	Stored   string `json:"stored"`
	Expected string `json:"expected"`
}

// Reconcile checks every installment against the ledger invariants.
func Reconcile(acct *models.Account) []Discrepancy {
	var out []Discrepancy
	for _, inst := range acct.DuePayments {
		expected := inst
		recalculate(&expected)
		if !inst.Total.Equal(expected.Total) {
			out = append(out, Discrepancy{DueNo: inst.DueNo, Field: "total", Stored: inst.Total.StringFixed(2), Expected: expected.Total.StringFixed(2)})
		}
		if !inst.BalanceAmount.Equal(expected.BalanceAmount) {
			out = append(out, Discrepancy{DueNo: inst.DueNo, Field: "balance_amount", Stored: inst.BalanceAmount.StringFixed(2), Expected: expected.BalanceAmount.StringFixed(2)})
		}
		// Overdue is a valid stored state for any unpaid installment.
		if inst.PaymentStatus == models.PaymentStatusOverdue && expected.PaymentStatus != models.PaymentStatusPaid {
			continue
		}
		// Fresh schedules hold zero-amount pending placeholders.
		if inst.PaymentStatus == models.PaymentStatusPending && inst.Total.IsZero() && inst.PaidAmount.IsZero() {
			continue
		}
		if inst.PaymentStatus != expected.PaymentStatus {
			out = append(out, Discrepancy{DueNo: inst.DueNo, Field: "payment_status", Stored: string(inst.PaymentStatus), Expected: string(expected.PaymentStatus)})
		}
	}
	return out
}
