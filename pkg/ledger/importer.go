package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mcclellann/fundLedger/pkg/models"
	"github.com/shopspring/decimal"
)

// Import records use pointers so a missing field can be told apart from a zero one.

type importInstallment struct {
	DueNo         *int                  `json:"due_no"`
	DueDate       *models.DueDate       `json:"due_date"`
	DueAmount     *decimal.Decimal      `json:"due_amount"`
	LoanInterest  *decimal.Decimal      `json:"loan_interest"`
	Total         *decimal.Decimal      `json:"total"`
	PaidAmount    *decimal.Decimal      `json:"paid_amount"`
	BalanceAmount *decimal.Decimal      `json:"balance_amount"`
	PaymentStatus *models.PaymentStatus `json:"payment_status"`
	CollectedOn   *time.Time            `json:"collected_on"`
}

type importAccount struct {
	Account              *string                   `json:"account"`
	Name                 *string                   `json:"name"`
	Mobile               string                    `json:"mobile"`
	FundAmount           *decimal.Decimal          `json:"fund_amount"`
	LoanAmount           *decimal.Decimal          `json:"loan_amount"`
	DuePayments          []importInstallment       `json:"due_payments"`
	LoanHistory          []models.LoanHistoryEntry `json:"loan_history"`
	LoanRepaymentHistory []models.RepaymentEntry   `json:"loan_repayment_history"`
}

// ImportRules are the schema limits applied to imported data.
type ImportRules struct {
	AccountPrefix string
	Installments  int
}

// DecodeAccountsImport reads {"accounts": [...]} and validates every record.
// The first invalid record rejects the whole batch.
func DecodeAccountsImport(r io.Reader, rules ImportRules) ([]*models.Account, error) {
	var payload struct {
		Accounts *[]importAccount `json:"accounts"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, invalid("payload", "malformed JSON: %v", err)
	}
	if payload.Accounts == nil {
		return nil, invalid("accounts", "array is required")
	}

	seen := make(map[string]bool, len(*payload.Accounts))
	accounts := make([]*models.Account, 0, len(*payload.Accounts))
	for i, rec := range *payload.Accounts {
		acct, err := rec.toAccount(rules)
		if err != nil {
			return nil, fmt.Errorf("account #%d: %w", i+1, err)
		}
		if seen[acct.Account] {
			return nil, fmt.Errorf("account #%d: %w", i+1, invalid("account", "%s appears more than once", acct.Account))
		}
		seen[acct.Account] = true
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// DecodeDuePaymentsImport reads {"due_payments": [...]} for a single account.
func DecodeDuePaymentsImport(r io.Reader, rules ImportRules) ([]models.Installment, error) {
	var payload struct {
		DuePayments *[]importInstallment `json:"due_payments"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, invalid("payload", "malformed JSON: %v", err)
	}
	if payload.DuePayments == nil {
		return nil, invalid("due_payments", "array is required")
	}
	return convertInstallments(*payload.DuePayments, rules)
}

func (rec importAccount) toAccount(rules ImportRules) (*models.Account, error) {
	if rec.Account == nil || !ValidAccountNumber(rules.AccountPrefix, *rec.Account) {
		return nil, invalid("account", "must look like %s", FormatAccountNumber(rules.AccountPrefix, 1))
	}
	if rec.Name == nil {
		return nil, invalid("name", "is required")
	}
	if err := ValidateName(*rec.Name); err != nil {
		return nil, err
	}
	mobile := strings.TrimSpace(rec.Mobile)
	if err := ValidateMobile(mobile); err != nil {
		return nil, err
	}
	fund, err := requireAmount("fund_amount", rec.FundAmount)
	if err != nil {
		return nil, err
	}
	loan, err := requireAmount("loan_amount", rec.LoanAmount)
	if err != nil {
		return nil, err
	}
	if rec.DuePayments == nil {
		return nil, invalid("due_payments", "array is required")
	}
	installments, err := convertInstallments(rec.DuePayments, rules)
	if err != nil {
		return nil, err
	}
	return &models.Account{
		Account:              *rec.Account,
		Name:                 strings.TrimSpace(*rec.Name),
		Mobile:               mobile,
		FundAmount:           fund,
		LoanAmount:           loan,
		DuePayments:          installments,
		LoanHistory:          rec.LoanHistory,
		LoanRepaymentHistory: rec.LoanRepaymentHistory,
	}, nil
}

// ValidateInstallments checks a full schedule: exactly the configured count,
// due numbers 1..N each once, known statuses, non-negative amounts with at
// most two decimal places, and paid_amount not above total.
func ValidateInstallments(installments []models.Installment, count int) error {
	if len(installments) != count {
		return invalid("due_payments", "expected %d installments, got %d", count, len(installments))
	}
	seen := make(map[int]bool, count)
	for _, inst := range installments {
		if inst.DueNo < 1 || inst.DueNo > count {
			return invalid("due_no", "%d is outside 1..%d", inst.DueNo, count)
		}
		if seen[inst.DueNo] {
			return invalid("due_no", "%d appears more than once", inst.DueNo)
		}
		seen[inst.DueNo] = true
		if !inst.PaymentStatus.Valid() {
			return invalid("payment_status", "%q is not one of pending, partial, paid, overdue", inst.PaymentStatus)
		}
		for name, v := range map[string]decimal.Decimal{
			"due_amount":     inst.DueAmount,
			"loan_interest":  inst.LoanInterest,
			"total":          inst.Total,
			"paid_amount":    inst.PaidAmount,
			"balance_amount": inst.BalanceAmount,
		} {
			if v.IsNegative() {
				return invalid(name, "must not be negative on due %d", inst.DueNo)
			}
			if !hasAtMostTwoPlaces(v) {
				return invalid(name, "must have at most two decimal places on due %d", inst.DueNo)
			}
		}
		if inst.PaidAmount.GreaterThan(inst.Total) {
			return invalid("paid_amount", "%s exceeds total %s on due %d", inst.PaidAmount, inst.Total, inst.DueNo)
		}
	}
	return nil
}

func convertInstallments(recs []importInstallment, rules ImportRules) ([]models.Installment, error) {
	out := make([]models.Installment, 0, len(recs))
	for i, rec := range recs {
		inst, err := rec.toInstallment()
		if err != nil {
			return nil, fmt.Errorf("due entry #%d: %w", i+1, err)
		}
		out = append(out, inst)
	}
	if err := ValidateInstallments(out, rules.Installments); err != nil {
		return nil, err
	}
	return ReplaceSchedule(&models.Account{}, out).DuePayments, nil
}

func (rec importInstallment) toInstallment() (models.Installment, error) {
	if rec.DueNo == nil {
		return models.Installment{}, invalid("due_no", "is required")
	}
	if rec.DueDate == nil || rec.DueDate.IsZero() {
		return models.Installment{}, invalid("due_date", "is required on due %d", *rec.DueNo)
	}
	if rec.PaymentStatus == nil {
		return models.Installment{}, invalid("payment_status", "is required on due %d", *rec.DueNo)
	}
	inst := models.Installment{
		DueNo:         *rec.DueNo,
		DueDate:       *rec.DueDate,
		PaymentStatus: *rec.PaymentStatus,
		CollectedOn:   rec.CollectedOn,
	}
	fields := []struct {
		name string
		src  *decimal.Decimal
		dst  *decimal.Decimal
	}{
		{"due_amount", rec.DueAmount, &inst.DueAmount},
		{"loan_interest", rec.LoanInterest, &inst.LoanInterest},
		{"total", rec.Total, &inst.Total},
		{"paid_amount", rec.PaidAmount, &inst.PaidAmount},
		{"balance_amount", rec.BalanceAmount, &inst.BalanceAmount},
	}
	for _, f := range fields {
		if f.src == nil {
			return models.Installment{}, invalid(f.name, "is required on due %d", inst.DueNo)
		}
		*f.dst = *f.src
	}
	return inst, nil
}

func requireAmount(field string, v *decimal.Decimal) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, invalid(field, "is required")
	}
	if v.IsNegative() {
		return decimal.Zero, invalid(field, "must not be negative")
	}
	if !hasAtMostTwoPlaces(*v) {
		return decimal.Zero, invalid(field, "must have at most two decimal places")
	}
	return *v, nil
}
