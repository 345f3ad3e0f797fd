package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fundLedger/pkg/models"
	"github.com/mcclellann/fundLedger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultInstallments is the number of monthly dues created per account.
	DefaultInstallments = 24

	defaultPaymentMethod = "cash"
	recentPaymentsLimit  = 5
	createAccountRetries = 3
)

// Settings are the ledger policies that come from configuration.
type Settings struct {
	AccountPrefix string
	Installments  int
	Policy        InterestPolicy
}

// DefaultSettings returns AZH numbering, 24 installments and 3% interest.
func DefaultSettings() Settings {
	return Settings{
		AccountPrefix: DefaultAccountPrefix,
		Installments:  DefaultInstallments,
		Policy:        DefaultInterestPolicy(),
	}
}

// Ledger handles the business logic for accounts and their installments.
// Every mutation reads the account by its business key, runs the engine on a
// staged copy and writes it back with the version it was read at.
type Ledger struct {
	storage  store.Storage
	logger   *zap.Logger
	settings Settings
	now      func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, logger *zap.Logger, settings Settings) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		storage:  s,
		logger:   logger,
		settings: settings,
		now:      time.Now,
	}
}

// Settings returns the policies the ledger was built with.
func (l *Ledger) Settings() Settings {
	return l.settings
}

// ImportRules returns the schema limits imports are validated against.
func (l *Ledger) ImportRules() ImportRules {
	return ImportRules{AccountPrefix: l.settings.AccountPrefix, Installments: l.settings.Installments}
}

func (l *Ledger) lookup(key string) (*models.Account, error) {
	acct, err := l.storage.GetAccountByNumber(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "account", Key: key}
		}
		return nil, err
	}
	return acct, nil
}

// mutate runs op against the stored account and persists the result.
// Nothing is written when op fails.
func (l *Ledger) mutate(key string, op func(*models.Account) (*models.Account, error)) (*models.Account, error) {
	acct, err := l.lookup(key)
	if err != nil {
		return nil, err
	}
	staged, err := op(acct)
	if err != nil {
		return nil, err
	}
	staged.UpdatedAt = l.now()
	if err := l.storage.UpdateAccount(staged); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "account", Key: key}
		}
		return nil, fmt.Errorf("failed to update account %s: %w", key, err)
	}
	return staged, nil
}

// journal appends to the transaction log. The account write has already
// happened, so a failure here is logged rather than returned.
func (l *Ledger) journal(acct *models.Account, txType models.TransactionType, amount decimal.Decimal, dueNo int, method, notes string) {
	tx := &models.Transaction{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Account:   acct.Account,
		DueNo:     dueNo,
		Amount:    amount,
		Type:      txType,
		Method:    method,
		Notes:     notes,
		Timestamp: l.now(),
	}
	if err := l.storage.CreateTransaction(tx); err != nil {
		l.logger.Error("failed to record transaction",
			zap.String("op", "journal"),
			zap.String("account", acct.Account),
			zap.String("type", string(txType)),
			zap.Error(err),
		)
	}
}

// CreateAccount opens a new account with the next free account number and a
// fresh schedule of pending installments.
func (l *Ledger) CreateAccount(name, mobile string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	mobile = strings.TrimSpace(mobile)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateMobile(mobile); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		accounts, err := l.storage.GetAllAccounts()
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(accounts))
		for _, a := range accounts {
			keys = append(keys, a.Account)
		}

		now := l.now()
		acct := &models.Account{
			ID:                   uuid.New(),
			Account:              NextAccountNumber(l.settings.AccountPrefix, keys),
			Name:                 name,
			Mobile:               mobile,
			FundAmount:           decimal.Zero,
			LoanAmount:           decimal.Zero,
			DuePayments:          NewSchedule(l.settings.Installments, now),
			LoanHistory:          []models.LoanHistoryEntry{},
			LoanRepaymentHistory: []models.RepaymentEntry{},
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		err = l.storage.CreateAccount(acct)
		if errors.Is(err, store.ErrDuplicateAccount) && attempt < createAccountRetries {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store account: %w", err)
		}

		l.logger.Info("account created",
			zap.String("op", "create_account"),
			zap.String("account", acct.Account),
		)
		return acct, nil
	}
}

// GetAccount retrieves an account by its account number.
func (l *Ledger) GetAccount(key string) (*models.Account, error) {
	return l.lookup(key)
}

// GetAllAccounts retrieves all accounts ordered by account number.
func (l *Ledger) GetAllAccounts() ([]*models.Account, error) {
	return l.storage.GetAllAccounts()
}

// RenameAccount changes the display name.
func (l *Ledger) RenameAccount(key, name string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	acct, err := l.mutate(key, func(a *models.Account) (*models.Account, error) {
		if a.Name == name {
			return nil, ErrNoChange
		}
		staged := a.Clone()
		staged.Name = name
		return staged, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("account renamed", zap.String("op", "rename_account"), zap.String("account", key))
	return acct, nil
}

// UpdateMobile sets or clears the contact number.
func (l *Ledger) UpdateMobile(key, mobile string) (*models.Account, error) {
	mobile = strings.TrimSpace(mobile)
	if err := ValidateMobile(mobile); err != nil {
		return nil, err
	}
	acct, err := l.mutate(key, func(a *models.Account) (*models.Account, error) {
		if a.Mobile == mobile {
			return nil, ErrNoChange
		}
		staged := a.Clone()
		staged.Mobile = mobile
		return staged, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("mobile updated", zap.String("op", "update_mobile"), zap.String("account", key))
	return acct, nil
}

// CollectRequest is a payment against one installment.
type CollectRequest struct {
	DueNo  int
	Amount decimal.Decimal
	Method string
	Notes  string
}

// CollectPayment applies a payment to an installment and credits the fund.
func (l *Ledger) CollectPayment(key string, req CollectRequest) (*models.Account, error) {
	acct, err := l.mutate(key, func(a *models.Account) (*models.Account, error) {
		return CollectPayment(a, req.DueNo, req.Amount, l.now())
	})
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = defaultPaymentMethod
	}
	l.journal(acct, models.TransactionTypeCollection, req.Amount, req.DueNo, method, req.Notes)
	l.logger.Info("payment collected",
		zap.String("op", "collect_payment"),
		zap.String("account", key),
		zap.Int("due_no", req.DueNo),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	return acct, nil
}

// ChangeLoanPrincipal overwrites the outstanding principal and re-prices unpaid dues.
func (l *Ledger) ChangeLoanPrincipal(key string, change LoanChange) (*models.Account, error) {
	var old decimal.Decimal
	acct, err := l.mutate(key, func(a *models.Account) (*models.Account, error) {
		old = a.LoanAmount
		return ChangeLoanPrincipal(a, change, l.settings.Policy, l.now())
	})
	if err != nil {
		return nil, err
	}

	l.journal(acct, models.TransactionTypeLoanChange, change.NewLoanAmount, 0, "", change.Reason)
	l.logger.Info("loan principal changed",
		zap.String("op", "change_loan"),
		zap.String("account", key),
		zap.String("old_loan_amount", old.StringFixed(2)),
		zap.String("new_loan_amount", change.NewLoanAmount.StringFixed(2)),
		zap.String("updated_by", change.UpdatedBy),
	)
	return acct, nil
}

// RepayLoan records a principal repayment and re-prices unpaid dues.
func (l *Ledger) RepayLoan(key string, repayment Repayment) (*models.Account, error) {
	acct, err := l.mutate(key, func(a *models.Account) (*models.Account, error) {
		return RepayLoanPrincipal(a, repayment, l.settings.Policy, l.now())
	})
	if err != nil {
		return nil, err
	}

	l.journal(acct, models.TransactionTypeRepayment, repayment.Amount, 0, "", repayment.Notes)
	l.logger.Info("loan repaid",
		zap.String("op", "repay_loan"),
		zap.String("account", key),
		zap.String("amount", repayment.Amount.StringFixed(2)),
		zap.String("loan_amount", acct.LoanAmount.StringFixed(2)),
	)
	return acct, nil
}

// UpdateDue edits the due and interest portions of one or all installments.
func (l *Ledger) UpdateDue(key string, update DueUpdate) (*models.Account, error) {
	acct, err := l.mutate(key, func(a *models.Account) (*models.Account, error) {
		return UpdateDue(a, update)
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("due details updated",
		zap.String("op", "update_due"),
		zap.String("account", key),
		zap.Int("due_no", update.DueNo),
		zap.Bool("apply_to_all", update.ApplyToAll),
	)
	return acct, nil
}

// ImportDuePayments replaces an account's whole schedule. Stored values that
// disagree with the amounts are kept and returned as discrepancies.
func (l *Ledger) ImportDuePayments(key string, installments []models.Installment) (*models.Account, []Discrepancy, error) {
	if err := ValidateInstallments(installments, l.settings.Installments); err != nil {
		return nil, nil, err
	}
	acct, err := l.mutate(key, func(a *models.Account) (*models.Account, error) {
		return ReplaceSchedule(a, installments), nil
	})
	if err != nil {
		return nil, nil, err
	}
	discrepancies := Reconcile(acct)
	l.logger.Info("due payments imported",
		zap.String("op", "import_due_payments"),
		zap.String("account", key),
		zap.Int("discrepancies", len(discrepancies)),
	)
	return acct, discrepancies, nil
}

// ImportResult reports an accounts import.
type ImportResult struct {
	Added         int                      `json:"added"`
	Updated       int                      `json:"updated"`
	Total         int                      `json:"total"`
	Discrepancies map[string][]Discrepancy `json:"discrepancies,omitempty"`
}

// ImportAccounts upserts a validated batch by account number, all or nothing.
func (l *Ledger) ImportAccounts(accounts []*models.Account) (*ImportResult, error) {
	now := l.now()
	result := &ImportResult{Total: len(accounts), Discrepancies: map[string][]Discrepancy{}}
	for _, acct := range accounts {
		if acct.CreatedAt.IsZero() {
			acct.CreatedAt = now
		}
		acct.UpdatedAt = now
		if acct.LoanHistory == nil {
			acct.LoanHistory = []models.LoanHistoryEntry{}
		}
		if acct.LoanRepaymentHistory == nil {
			acct.LoanRepaymentHistory = []models.RepaymentEntry{}
		}
		if d := Reconcile(acct); len(d) > 0 {
			result.Discrepancies[acct.Account] = d
		}
	}

	added, updated, err := l.storage.ImportAccounts(accounts)
	if err != nil {
		return nil, fmt.Errorf("failed to import accounts: %w", err)
	}
	result.Added, result.Updated = added, updated

	for key, d := range result.Discrepancies {
		l.logger.Warn("imported account disagrees with derived values",
			zap.String("op", "import_accounts"),
			zap.String("account", key),
			zap.Int("discrepancies", len(d)),
		)
	}
	l.logger.Info("accounts imported",
		zap.String("op", "import_accounts"),
		zap.Int("added", added),
		zap.Int("updated", updated),
	)
	return result, nil
}

// FundUpdate sets an account's fund amount outright.
type FundUpdate struct {
	Account    string          `json:"account"`
	FundAmount decimal.Decimal `json:"fund_amount"`
}

// FundUpdateResult is the per-account outcome of a bulk fund update.
type FundUpdateResult struct {
	Account string `json:"account"`
	Status  string `json:"status"` // "success" or "error"
	Error   string `json:"error,omitempty"`
}

// BulkUpdateFund applies each update independently. Negative or sub-cent
// amounts reject the whole request before anything is written.
func (l *Ledger) BulkUpdateFund(updates []FundUpdate) ([]FundUpdateResult, error) {
	if len(updates) == 0 {
		return nil, invalid("updates", "at least one account is required")
	}
	for _, u := range updates {
		if u.FundAmount.IsNegative() {
			return nil, invalid("fund_amount", "must not be negative for %s", u.Account)
		}
		if !hasAtMostTwoPlaces(u.FundAmount) {
			return nil, invalid("fund_amount", "must have at most two decimal places for %s", u.Account)
		}
	}

	results := make([]FundUpdateResult, 0, len(updates))
	for _, u := range updates {
		amount := u.FundAmount
		acct, err := l.mutate(u.Account, func(a *models.Account) (*models.Account, error) {
			staged := a.Clone()
			staged.FundAmount = amount
			return staged, nil
		})
		if err != nil {
			l.logger.Warn("bulk fund update failed",
				zap.String("op", "bulk_update_fund"),
				zap.String("account", u.Account),
				zap.Error(err),
			)
			results = append(results, FundUpdateResult{Account: u.Account, Status: "error", Error: err.Error()})
			continue
		}
		l.journal(acct, models.TransactionTypeFundUpdate, amount, 0, "", "")
		results = append(results, FundUpdateResult{Account: u.Account, Status: "success"})
	}
	return results, nil
}

// AccountSummary is the read-only snapshot handed to the presentation layer.
type AccountSummary struct {
	Account       *models.Account      `json:"account"`
	Totals        AccountTotals        `json:"totals"`
	Collectible   []models.Installment `json:"collectible"`
	Discrepancies []Discrepancy        `json:"discrepancies"`
}

// Summary returns an account with its aggregates and this month's collectible dues.
func (l *Ledger) Summary(key string) (*AccountSummary, error) {
	acct, err := l.lookup(key)
	if err != nil {
		return nil, err
	}
	now := l.now()
	summary := &AccountSummary{
		Account:       acct,
		Totals:        Totals(acct),
		Collectible:   []models.Installment{},
		Discrepancies: Reconcile(acct),
	}
	if summary.Discrepancies == nil {
		summary.Discrepancies = []Discrepancy{}
	}
	for _, inst := range acct.DuePayments {
		if IsCollectible(inst, now) && inst.PaymentStatus != models.PaymentStatusPaid {
			summary.Collectible = append(summary.Collectible, inst)
		}
	}
	return summary, nil
}

// GetTransactions returns the journal of an account, oldest first.
func (l *Ledger) GetTransactions(key string) ([]*models.Transaction, error) {
	acct, err := l.lookup(key)
	if err != nil {
		return nil, err
	}
	return l.storage.GetTransactionsForAccount(acct.ID)
}

// DueReport lists one due number across all accounts.
func (l *Ledger) DueReport(dueNo int) (*DueReport, error) {
	if dueNo < 1 || dueNo > l.settings.Installments {
		return nil, invalid("due_no", "must be between 1 and %d", l.settings.Installments)
	}
	accounts, err := l.storage.GetAllAccounts()
	if err != nil {
		return nil, err
	}
	report := BuildDueReport(accounts, dueNo)
	return &report, nil
}

// Dashboard returns fund totals, this month's collection status and the latest collections.
func (l *Ledger) Dashboard() (*Dashboard, error) {
	accounts, err := l.storage.GetAllAccounts()
	if err != nil {
		return nil, err
	}
	d := BuildDashboard(accounts, l.now())
	recent, err := l.storage.GetRecentTransactions(models.TransactionTypeCollection, recentPaymentsLimit)
	if err != nil {
		return nil, err
	}
	if recent != nil {
		d.RecentPayments = recent
	}
	return &d, nil
}

// SweepOverdue marks pending installments from past months as overdue.
// Accounts that fail to update are logged and skipped.
func (l *Ledger) SweepOverdue() (int, error) {
	accounts, err := l.storage.GetAllAccounts()
	if err != nil {
		return 0, err
	}

	now := l.now()
	total := 0
	for _, acct := range accounts {
		staged, changed := MarkOverdue(acct, now)
		if changed == 0 {
			continue
		}
		staged.UpdatedAt = now
		if err := l.storage.UpdateAccount(staged); err != nil {
			l.logger.Warn("overdue sweep skipped account",
				zap.String("op", "sweep_overdue"),
				zap.String("account", acct.Account),
				zap.Error(err),
			)
			continue
		}
		total += changed
	}

	l.logger.Info("overdue sweep complete",
		zap.String("op", "sweep_overdue"),
		zap.Int("accounts", len(accounts)),
		zap.Int("marked", total),
	)
	return total, nil
}
