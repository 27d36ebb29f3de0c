package data

import (
	"context"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// TransactionLog is one signed ledger entry against an Account. Balance
// equals the running sum of NewBalanceCents-producing deltas for that
// account; a non-deposit Transaction always produces exactly two logs.
type TransactionLog struct {
	ID              int64     `json:"id" db:"id"`
	TransactionID   string    `json:"transaction_id" db:"transaction_id"`
	AccountID       int64     `json:"account_id" db:"account_id"`
	Direction       Direction `json:"direction" db:"direction"`
	AmountCents     int64     `json:"amount_cents" db:"amount_cents"`
	NewBalanceCents int64     `json:"new_balance_cents" db:"new_balance_cents"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type TransactionLogModel struct {
	dbConnectionPool db.DBConnectionPool
}

func (m *TransactionLogModel) Insert(ctx context.Context, dbTx db.DBTransaction, transactionID string, accountID int64, direction Direction, amountCents, newBalanceCents int64) (*TransactionLog, error) {
	var txLog TransactionLog
	query := `INSERT INTO transaction_logs (transaction_id, account_id, direction, amount_cents, new_balance_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, transaction_id, account_id, direction, amount_cents, new_balance_cents, created_at`
	err := dbTx.GetContext(ctx, &txLog, query, transactionID, accountID, direction, amountCents, newBalanceCents)
	if err != nil {
		return nil, fmt.Errorf("inserting transaction log: %w", err)
	}
	return &txLog, nil
}

func (m *TransactionLogModel) GetByTransaction(ctx context.Context, sqlExec db.SQLExecuter, transactionID string) ([]TransactionLog, error) {
	var logs []TransactionLog
	query := `SELECT id, transaction_id, account_id, direction, amount_cents, new_balance_cents, created_at
		FROM transaction_logs WHERE transaction_id = $1 ORDER BY id`
	if err := sqlExec.SelectContext(ctx, &logs, query, transactionID); err != nil {
		return nil, fmt.Errorf("getting transaction logs for %s: %w", transactionID, err)
	}
	return logs, nil
}

// SumByAccount reconciles an account's balance against its ledger history,
// used by the self-test suite to assert the balance invariant holds.
func (m *TransactionLogModel) SumByAccount(ctx context.Context, sqlExec db.SQLExecuter, accountID int64) (int64, error) {
	var sum int64
	query := `SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount_cents ELSE -amount_cents END), 0)
		FROM transaction_logs WHERE account_id = $1`
	if err := sqlExec.GetContext(ctx, &sum, query, accountID); err != nil {
		return 0, fmt.Errorf("summing transaction logs for account %d: %w", accountID, err)
	}
	return sum, nil
}
