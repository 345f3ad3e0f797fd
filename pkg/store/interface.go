package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/fundLedger/pkg/models"
)

var (
	ErrNotFound         = errors.New("account not found")
	ErrConflict         = errors.New("account was modified concurrently")
	ErrDuplicateAccount = errors.New("account number already exists")
)

// Storage defines the interface for database operations related to accounts and transactions.
//
// UpdateAccount is a conditional write: it succeeds only when the stored
// version equals account.Version, and bumps the version on success.
type Storage interface {
	CreateAccount(account *models.Account) error
	GetAccount(id uuid.UUID) (*models.Account, error)
	GetAccountByNumber(number string) (*models.Account, error)
	UpdateAccount(account *models.Account) error
	GetAllAccounts() ([]*models.Account, error)
	// ImportAccounts upserts by account number in a single transaction.
	ImportAccounts(accounts []*models.Account) (added, updated int, err error)

	CreateTransaction(transaction *models.Transaction) error
	GetTransactionsForAccount(accountID uuid.UUID) ([]*models.Transaction, error)
	GetRecentTransactions(txType models.TransactionType, limit int) ([]*models.Transaction, error)

	Close() error
}
