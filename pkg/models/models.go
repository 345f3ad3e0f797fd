package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusOverdue:
		return true
	}
	return false
}

// Installment is one scheduled monthly obligation of an account.
type Installment struct {
	DueNo         int             `json:"due_no"`
	DueDate       DueDate         `json:"due_date"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	LoanInterest  decimal.Decimal `json:"loan_interest"`
	Total         decimal.Decimal `json:"total"`          // DueAmount + LoanInterest
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"` // Total - PaidAmount, never negative
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CollectedOn   *time.Time      `json:"collected_on,omitempty"`
}

type LoanHistoryEntry struct {
	UpdatedAt     time.Time       `json:"updated_at"`
	UpdatedBy     string          `json:"updated_by"`
	OldLoanAmount decimal.Decimal `json:"old_loan_amount"`
	NewLoanAmount decimal.Decimal `json:"new_loan_amount"`
	Reason        string          `json:"reason,omitempty"`
}

type RepaymentEntry struct {
	Date      DueDate         `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
	Timestamp time.Time       `json:"timestamp"`
}

type Account struct {
	ID                   uuid.UUID          `json:"id"`
	Account              string             `json:"account"` // Business key, e.g. "AZH-001"
	Name                 string             `json:"name"`
	Mobile               string             `json:"mobile"`
	FundAmount           decimal.Decimal    `json:"fund_amount"`
	LoanAmount           decimal.Decimal    `json:"loan_amount"`
	DuePayments          []Installment      `json:"due_payments"`
	LoanHistory          []LoanHistoryEntry `json:"loan_history"`
	LoanRepaymentHistory []RepaymentEntry   `json:"loan_repayment_history"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	Version              int64              `json:"version"` // Bumped by the store on every update
}

// Clone returns a deep copy of the account so callers can stage changes.
func (a *Account) Clone() *Account {
	c := *a
	c.DuePayments = make([]Installment, len(a.DuePayments))
	for i, inst := range a.DuePayments {
		if inst.CollectedOn != nil {
			t := *inst.CollectedOn
			inst.CollectedOn = &t
		}
		c.DuePayments[i] = inst
	}
	c.LoanHistory = make([]LoanHistoryEntry, len(a.LoanHistory))
	copy(c.LoanHistory, a.LoanHistory)
	c.LoanRepaymentHistory = make([]RepaymentEntry, len(a.LoanRepaymentHistory))
	copy(c.LoanRepaymentHistory, a.LoanRepaymentHistory)
	return &c
}

// Installment returns a pointer to the installment with the given due number.
func (a *Account) Installment(dueNo int) (*Installment, bool) {
	for i := range a.DuePayments {
		if a.DuePayments[i].DueNo == dueNo {
			return &a.DuePayments[i], true
		}
	}
	return nil, false
}

type TransactionType string

const (
	TransactionTypeCollection TransactionType = "collection"
	TransactionTypeRepayment  TransactionType = "repayment"
	TransactionTypeLoanChange TransactionType = "loan_change"
	TransactionTypeFundUpdate TransactionType = "fund_update"
)

type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Account   string          `json:"account"`
	DueNo     int             `json:"due_no,omitempty"` // Only set for collections
	Amount    decimal.Decimal `json:"amount"`
	Type      TransactionType `json:"type"`
	Method    string          `json:"method,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
