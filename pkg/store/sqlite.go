package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/fundLedger/pkg/models"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't already exist and adds columns
// introduced after the first release.
// Decimal fields are TEXT so no precision is lost; installments and the
// history logs are stored as JSON documents on the account row.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		name TEXT NOT NULL,
		mobile TEXT NOT NULL DEFAULT '',
		fund_amount TEXT NOT NULL DEFAULT '0',
		loan_amount TEXT NOT NULL DEFAULT '0',
		due_payments TEXT NOT NULL DEFAULT '[]',
		loan_history TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_account ON accounts(account);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		account TEXT NOT NULL,
		due_no INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		FOREIGN KEY(account_id) REFERENCES accounts(id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	columns := []string{
		"loan_repayment_history TEXT NOT NULL DEFAULT '[]'",
		"version INTEGER NOT NULL DEFAULT 1",
	}

	for _, col := range columns {
		_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE accounts ADD COLUMN %s", col))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

const accountColumns = `id, account, name, mobile, fund_amount, loan_amount, due_payments, loan_history, loan_repayment_history, created_at, updated_at, version`

// accountDocs holds the JSON-encoded parts of an account row.
type accountDocs struct {
	duePayments, loanHistory, repayments string
}

func encodeDocs(a *models.Account) (accountDocs, error) {
	var docs accountDocs
	due := a.DuePayments
	if due == nil {
		due = []models.Installment{}
	}
	b, err := json.Marshal(due)
	if err != nil {
		return docs, fmt.Errorf("failed to encode due payments: %w", err)
	}
	docs.duePayments = string(b)

	history := a.LoanHistory
	if history == nil {
		history = []models.LoanHistoryEntry{}
	}
	if b, err = json.Marshal(history); err != nil {
		return docs, fmt.Errorf("failed to encode loan history: %w", err)
	}
	docs.loanHistory = string(b)

	repayments := a.LoanRepaymentHistory
	if repayments == nil {
		repayments = []models.RepaymentEntry{}
	}
	if b, err = json.Marshal(repayments); err != nil {
		return docs, fmt.Errorf("failed to encode repayment history: %w", err)
	}
	docs.repayments = string(b)
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var idStr string
	var docs accountDocs
	err := row.Scan(&idStr, &account.Account, &account.Name, &account.Mobile, &account.FundAmount, &account.LoanAmount,
		&docs.duePayments, &docs.loanHistory, &docs.repayments, &account.CreatedAt, &account.UpdatedAt, &account.Version)
	if err != nil {
		return nil, err
	}
	account.ID = uuid.MustParse(idStr)
	if err := json.Unmarshal([]byte(docs.duePayments), &account.DuePayments); err != nil {
		return nil, fmt.Errorf("failed to decode due payments for %s: %w", account.Account, err)
	}
	if err := json.Unmarshal([]byte(docs.loanHistory), &account.LoanHistory); err != nil {
		return nil, fmt.Errorf("failed to decode loan history for %s: %w", account.Account, err)
	}
	if err := json.Unmarshal([]byte(docs.repayments), &account.LoanRepaymentHistory); err != nil {
		return nil, fmt.Errorf("failed to decode repayment history for %s: %w", account.Account, err)
	}
	return &account, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertAccount(db execer, account *models.Account) error {
	docs, err := encodeDocs(account)
	if err != nil {
		return err
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Version == 0 {
		account.Version = 1
	}
	_, err = db.Exec(
		`INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID.String(), account.Account, account.Name, account.Mobile, account.FundAmount, account.LoanAmount,
		docs.duePayments, docs.loanHistory, docs.repayments, account.CreatedAt, account.UpdatedAt, account.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// CreateAccount inserts a new account into the database.
func (s *SQLiteStore) CreateAccount(account *models.Account) error {
	return insertAccount(s.db, account)
}

// GetAccount retrieves an account by its storage ID.
func (s *SQLiteStore) GetAccount(id uuid.UUID) (*models.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetAccountByNumber retrieves an account by its business key using the unique index.
func (s *SQLiteStore) GetAccountByNumber(number string) (*models.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE account = ?`, number)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", number, err)
	}
	return account, nil
}

// UpdateAccount writes the account back if nobody else has updated it since it was read.
func (s *SQLiteStore) UpdateAccount(account *models.Account) error {
	docs, err := encodeDocs(account)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(
		`UPDATE accounts SET account = ?, name = ?, mobile = ?, fund_amount = ?, loan_amount = ?, due_payments = ?, loan_history = ?, loan_repayment_history = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		account.Account, account.Name, account.Mobile, account.FundAmount, account.LoanAmount,
		docs.duePayments, docs.loanHistory, docs.repayments, account.UpdatedAt, account.ID.String(), account.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists int
		err := s.db.QueryRow(`SELECT COUNT(1) FROM accounts WHERE id = ?`, account.ID.String()).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check account existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	account.Version++
	return nil
}

// GetAllAccounts retrieves all accounts ordered by account number.
func (s *SQLiteStore) GetAllAccounts() ([]*models.Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY account ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return accounts, nil
}

// ImportAccounts upserts the batch keyed by account number within a single transaction.
// Existing rows keep their storage ID and creation time.
func (s *SQLiteStore) ImportAccounts(accounts []*models.Account) (int, int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	added, updated := 0, 0
	for _, account := range accounts {
		var idStr string
		var createdAt time.Time
		var version int64
		err := tx.QueryRow(`SELECT id, created_at, version FROM accounts WHERE account = ?`, account.Account).Scan(&idStr, &createdAt, &version)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if err := insertAccount(tx, account); err != nil {
				return 0, 0, fmt.Errorf("failed to import %s: %w", account.Account, err)
			}
			added++
		case err != nil:
			return 0, 0, fmt.Errorf("failed to look up %s: %w", account.Account, err)
		default:
			docs, err := encodeDocs(account)
			if err != nil {
				return 0, 0, err
			}
			_, err = tx.Exec(
				`UPDATE accounts SET name = ?, mobile = ?, fund_amount = ?, loan_amount = ?, due_payments = ?, loan_history = ?, loan_repayment_history = ?, updated_at = ?, version = version + 1
				WHERE id = ?`,
				account.Name, account.Mobile, account.FundAmount, account.LoanAmount,
				docs.duePayments, docs.loanHistory, docs.repayments, account.UpdatedAt, idStr,
			)
			if err != nil {
				return 0, 0, fmt.Errorf("failed to update %s: %w", account.Account, err)
			}
			account.ID = uuid.MustParse(idStr)
			account.CreatedAt = createdAt
			account.Version = version + 1
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return added, updated, nil
}

// CreateTransaction inserts a new transaction into the database.
func (s *SQLiteStore) CreateTransaction(transaction *models.Transaction) error {
	_, err := s.db.Exec(
		`INSERT INTO transactions (id, account_id, account, due_no, amount, type, method, notes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transaction.ID.String(), transaction.AccountID.String(), transaction.Account, transaction.DueNo,
		transaction.Amount, transaction.Type, transaction.Method, transaction.Notes, transaction.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

const transactionColumns = `id, account_id, account, due_no, amount, type, method, notes, timestamp`

// GetTransactionsForAccount retrieves all transactions for a given account ID, oldest first.
func (s *SQLiteStore) GetTransactionsForAccount(accountID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := s.db.Query(`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? ORDER BY timestamp ASC`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// GetRecentTransactions returns the newest transactions of a type, newest first.
func (s *SQLiteStore) GetRecentTransactions(txType models.TransactionType, limit int) ([]*models.Transaction, error) {
	rows, err := s.db.Query(`SELECT `+transactionColumns+` FROM transactions WHERE type = ? ORDER BY timestamp DESC LIMIT ?`, txType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent %s transactions: %w", txType, err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		var transaction models.Transaction
		var txIDStr, accountIDStr string
		if err := rows.Scan(&txIDStr, &accountIDStr, &transaction.Account, &transaction.DueNo, &transaction.Amount,
			&transaction.Type, &transaction.Method, &transaction.Notes, &transaction.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transaction.ID = uuid.MustParse(txIDStr)
		transaction.AccountID = uuid.MustParse(accountIDStr)
		transactions = append(transactions, &transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for transactions: %w", err)
	}
	return transactions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
