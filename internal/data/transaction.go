package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionReversed  TransactionStatus = "reversed"
)

// Transaction is the ledger's unit of movement between up to two Accounts.
// A nil FromAccountID marks a system-originated deposit.
type Transaction struct {
	ID              string            `json:"id" db:"id"`
	FromAccountID   *int64            `json:"from_account_id,omitempty" db:"from_account_id"`
	ToAccountID     *int64            `json:"to_account_id,omitempty" db:"to_account_id"`
	AmountCents     int64             `json:"amount_cents" db:"amount_cents"`
	FeeCents        int64             `json:"fee_cents" db:"fee_cents"`
	Currency        string            `json:"currency" db:"currency"`
	TransactionType string            `json:"transaction_type" db:"transaction_type"`
	Status          TransactionStatus `json:"status" db:"status"`
	ReversalOf      *string           `json:"reversal_of,omitempty" db:"reversal_of"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

type TransactionModel struct {
	dbConnectionPool db.DBConnectionPool
}

const transactionBaseQuery = `SELECT id, from_account_id, to_account_id, amount_cents, fee_cents, currency, transaction_type, status, reversal_of, created_at, updated_at FROM transactions`

type TransactionInsert struct {
	ID              string
	FromAccountID   *int64
	ToAccountID     *int64
	AmountCents     int64
	FeeCents        int64
	Currency        string
	TransactionType string
	ReversalOf      *string
}

func (t TransactionInsert) Validate() error {
	if t.AmountCents <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if t.FeeCents < 0 {
		return fmt.Errorf("fee must be non-negative")
	}
	if t.FromAccountID != nil && t.ToAccountID != nil && *t.FromAccountID == *t.ToAccountID {
		return fmt.Errorf("from and to accounts must differ")
	}
	return nil
}

func (m *TransactionModel) Insert(ctx context.Context, dbTx db.DBTransaction, insert TransactionInsert) (*Transaction, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating transaction insert: %w", err)
	}
	var transaction Transaction
	query := `INSERT INTO transactions (id, from_account_id, to_account_id, amount_cents, fee_cents, currency, transaction_type, status, reversal_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, from_account_id, to_account_id, amount_cents, fee_cents, currency, transaction_type, status, reversal_of, created_at, updated_at`
	err := dbTx.GetContext(ctx, &transaction, query,
		insert.ID, insert.FromAccountID, insert.ToAccountID, insert.AmountCents, insert.FeeCents,
		insert.Currency, insert.TransactionType, TransactionPending, insert.ReversalOf)
	if err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}
	return &transaction, nil
}

func (m *TransactionModel) UpdateStatus(ctx context.Context, dbTx db.DBTransaction, id string, status TransactionStatus) error {
	query := `UPDATE transactions SET status = $1, updated_at = now() WHERE id = $2`
	res, err := dbTx.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("updating transaction %s status: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *TransactionModel) GetByID(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Transaction, error) {
	var transaction Transaction
	query := transactionBaseQuery + ` WHERE id = $1`
	if err := sqlExec.GetContext(ctx, &transaction, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return &transaction, nil
}

// GetByAccount lists transactions touching an account, newest first, used by
// the statement/export surface.
func (m *TransactionModel) GetByAccount(ctx context.Context, sqlExec db.SQLExecuter, accountID int64, limit int) ([]Transaction, error) {
	var transactions []Transaction
	query := transactionBaseQuery + ` WHERE from_account_id = $1 OR to_account_id = $1 ORDER BY created_at DESC LIMIT $2`
	if err := sqlExec.SelectContext(ctx, &transactions, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("getting transactions for account %d: %w", accountID, err)
	}
	return transactions, nil
}
