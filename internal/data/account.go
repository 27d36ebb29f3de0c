package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

type AccountType string

const (
	AccountTypeUser    AccountType = "user"
	AccountTypeSystem  AccountType = "system"
	AccountTypeMMF     AccountType = "mmf"
	AccountTypeUtility AccountType = "utility"
	AccountTypePaybill AccountType = "paybill"
	AccountTypeTill    AccountType = "till"
)

// Account is the universal ledger leaf: every Transaction debits or credits
// one or two Accounts, and every monetary change is mirrored by a
// TransactionLog row whose sum reconciles BalanceCents.
type Account struct {
	ID            int64       `json:"id" db:"id"`
	AccountType   AccountType `json:"account_type" db:"account_type"`
	BalanceCents  int64       `json:"balance_cents" db:"balance_cents"`
	Disabled      bool        `json:"disabled" db:"disabled"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

type AccountModel struct {
	dbConnectionPool db.DBConnectionPool
}

const accountBaseQuery = `SELECT id, account_type, balance_cents, disabled, created_at FROM accounts`

// Create inserts a new zero-balance Account inside dbTx; callers create
// Accounts as part of a larger ledger-transfer transaction, never alone.
func (m *AccountModel) Create(ctx context.Context, dbTx db.DBTransaction, accountType AccountType) (*Account, error) {
	var account Account
	query := `INSERT INTO accounts (account_type, balance_cents, disabled) VALUES ($1, 0, false) RETURNING id, account_type, balance_cents, disabled, created_at`
	if err := dbTx.GetContext(ctx, &account, query, accountType); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return &account, nil
}

// GetByID fetches an account without locking, for read-only display.
func (m *AccountModel) GetByID(ctx context.Context, sqlExec db.SQLExecuter, id int64) (*Account, error) {
	var account Account
	query := accountBaseQuery + ` WHERE id = $1`
	if err := sqlExec.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting account by id %d: %w", id, err)
	}
	return &account, nil
}

// LockForUpdate fetches an account row with FOR UPDATE, used by the ledger
// engine to serialize concurrent transfers touching the same account.
func (m *AccountModel) LockForUpdate(ctx context.Context, dbTx db.DBTransaction, id int64) (*Account, error) {
	var account Account
	query := accountBaseQuery + ` WHERE id = $1 FOR UPDATE`
	if err := dbTx.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("locking account %d: %w", id, err)
	}
	return &account, nil
}

// GetSystemFeesAccount returns the well-known system:fees account, if the
// deployment has provisioned one via the system_accounts label table. Not
// every simulator instance has one; callers treat ErrRecordNotFound as "no
// fees account configured", not a fault.
func (m *AccountModel) GetSystemFeesAccount(ctx context.Context, sqlExec db.SQLExecuter) (*Account, error) {
	var account Account
	query := `SELECT a.id, a.account_type, a.balance_cents, a.disabled, a.created_at
		FROM accounts a JOIN system_accounts sa ON sa.account_id = a.id
		WHERE sa.label = 'fees'`
	if err := sqlExec.GetContext(ctx, &account, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting system fees account: %w", err)
	}
	return &account, nil
}

// UpdateBalance sets the account's new balance, called once per account
// inside a ledger transfer after the corresponding TransactionLog is written.
func (m *AccountModel) UpdateBalance(ctx context.Context, dbTx db.DBTransaction, id int64, newBalanceCents int64) error {
	query := `UPDATE accounts SET balance_cents = $1 WHERE id = $2`
	res, err := dbTx.ExecContext(ctx, query, newBalanceCents, id)
	if err != nil {
		return fmt.Errorf("updating account %d balance: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// User is the 1:1 specialization of Account for end-user MSISDN wallets.
type User struct {
	AccountID int64  `json:"account_id" db:"account_id"`
	Phone     string `json:"phone" db:"phone"`
	PIN       string `json:"pin" db:"pin"`
}

// MmfAccount is a Business's working (Merchant/Main Float) account.
type MmfAccount struct {
	AccountID  int64 `json:"account_id" db:"account_id"`
	BusinessID int64 `json:"business_id" db:"business_id"`
}

// UtilityAccount is a Business's settlement account for paybill/till
// collections.
type UtilityAccount struct {
	AccountID  int64 `json:"account_id" db:"account_id"`
	BusinessID int64 `json:"business_id" db:"business_id"`
}

// PaybillAccount represents one registered paybill (C2B short code) owned by
// a Business, with optional validation/confirmation URLs and a response type
// controlling whether validation is invoked before confirmation.
type PaybillAccount struct {
	AccountID        int64   `json:"account_id" db:"account_id"`
	BusinessID       int64   `json:"business_id" db:"business_id"`
	PaybillNumber    string  `json:"paybill_number" db:"paybill_number"`
	ValidationURL    *string `json:"validation_url,omitempty" db:"validation_url"`
	ConfirmationURL  *string `json:"confirmation_url,omitempty" db:"confirmation_url"`
	ResponseType     string  `json:"response_type" db:"response_type"`
}

// TillAccount represents one registered till (Buy Goods) number.
type TillAccount struct {
	AccountID       int64   `json:"account_id" db:"account_id"`
	BusinessID      int64   `json:"business_id" db:"business_id"`
	TillNumber      string  `json:"till_number" db:"till_number"`
	ValidationURL   *string `json:"validation_url,omitempty" db:"validation_url"`
	ConfirmationURL *string `json:"confirmation_url,omitempty" db:"confirmation_url"`
	ResponseType    string  `json:"response_type" db:"response_type"`
}
