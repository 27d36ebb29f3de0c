// Package ledger implements the double-entry transfer engine: every
// monetary movement between accounts is recorded as one Transaction plus
// one TransactionLog per account it touches, inside a transaction the
// caller owns.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/data"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountDisabled   = errors.New("account disabled")
	ErrAccountNotFound   = data.ErrRecordNotFound
)

// Engine computes fees and moves balances for one transfer at a time. It
// holds no state of its own; all state lives in the database models it
// wraps.
type Engine struct {
	accounts         *data.AccountModel
	transactions     *data.TransactionModel
	transactionLogs  *data.TransactionLogModel
	transactionCosts *data.TransactionCostModel
}

func NewEngine(models *data.Models) *Engine {
	return &Engine{
		accounts:         models.Accounts,
		transactions:     models.Transactions,
		transactionLogs:  models.TransactionLogs,
		transactionCosts: models.TransactionCosts,
	}
}

// Transfer moves amountCents from the account identified by fromAccountID to
// toAccountID, computing the fee from the matching TransactionCost bracket
// and crediting it to a system:fees account when one exists. fromAccountID
// nil marks a system-originated deposit, in which case only the credit side
// runs and no fee is charged. Must run inside dbTx; the caller commits or
// rolls back.
func (e *Engine) Transfer(ctx context.Context, dbTx db.DBTransaction, fromAccountID *int64, toAccountID int64, amountCents int64, kind string) (*data.Transaction, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	toAccount, err := e.accounts.LockForUpdate(ctx, dbTx, toAccountID)
	if err != nil {
		return nil, fmt.Errorf("locking destination account: %w", err)
	}
	if toAccount.Disabled {
		return nil, ErrAccountDisabled
	}

	if fromAccountID == nil {
		return e.deposit(ctx, dbTx, toAccount, amountCents, kind)
	}

	if *fromAccountID == toAccountID {
		return nil, fmt.Errorf("from and to accounts must differ")
	}

	fromAccount, err := e.accounts.LockForUpdate(ctx, dbTx, *fromAccountID)
	if err != nil {
		return nil, fmt.Errorf("locking source account: %w", err)
	}
	if fromAccount.Disabled {
		return nil, ErrAccountDisabled
	}

	feeCents, err := e.computeFee(ctx, dbTx, kind, amountCents)
	if err != nil {
		return nil, fmt.Errorf("computing fee: %w", err)
	}

	totalDebit := amountCents + feeCents
	if fromAccount.BalanceCents < totalDebit {
		return nil, ErrInsufficientFunds
	}

	txn, err := e.transactions.Insert(ctx, dbTx, data.TransactionInsert{
		ID:              uuid.NewString(),
		FromAccountID:   fromAccountID,
		ToAccountID:     &toAccountID,
		AmountCents:     amountCents,
		FeeCents:        feeCents,
		Currency:        "KES",
		TransactionType: kind,
	})
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	newFromBalance := fromAccount.BalanceCents - totalDebit
	if err = e.accounts.UpdateBalance(ctx, dbTx, fromAccount.ID, newFromBalance); err != nil {
		return nil, fmt.Errorf("debiting source account: %w", err)
	}
	if _, err = e.transactionLogs.Insert(ctx, dbTx, txn.ID, fromAccount.ID, data.DirectionDebit, totalDebit, newFromBalance); err != nil {
		return nil, fmt.Errorf("writing source transaction log: %w", err)
	}

	newToBalance := toAccount.BalanceCents + amountCents
	if err = e.accounts.UpdateBalance(ctx, dbTx, toAccount.ID, newToBalance); err != nil {
		return nil, fmt.Errorf("crediting destination account: %w", err)
	}
	if _, err = e.transactionLogs.Insert(ctx, dbTx, txn.ID, toAccount.ID, data.DirectionCredit, amountCents, newToBalance); err != nil {
		return nil, fmt.Errorf("writing destination transaction log: %w", err)
	}

	if feeCents > 0 {
		if err = e.creditFeesAccount(ctx, dbTx, txn.ID, feeCents); err != nil {
			return nil, fmt.Errorf("crediting fees account: %w", err)
		}
	}

	if err = e.transactions.UpdateStatus(ctx, dbTx, txn.ID, data.TransactionCompleted); err != nil {
		return nil, fmt.Errorf("completing transaction: %w", err)
	}
	txn.Status = data.TransactionCompleted

	return txn, nil
}

func (e *Engine) deposit(ctx context.Context, dbTx db.DBTransaction, toAccount *data.Account, amountCents int64, kind string) (*data.Transaction, error) {
	txn, err := e.transactions.Insert(ctx, dbTx, data.TransactionInsert{
		ID:              uuid.NewString(),
		ToAccountID:     &toAccount.ID,
		AmountCents:     amountCents,
		Currency:        "KES",
		TransactionType: kind,
	})
	if err != nil {
		return nil, fmt.Errorf("creating deposit transaction: %w", err)
	}

	newBalance := toAccount.BalanceCents + amountCents
	if err = e.accounts.UpdateBalance(ctx, dbTx, toAccount.ID, newBalance); err != nil {
		return nil, fmt.Errorf("crediting account: %w", err)
	}
	if _, err = e.transactionLogs.Insert(ctx, dbTx, txn.ID, toAccount.ID, data.DirectionCredit, amountCents, newBalance); err != nil {
		return nil, fmt.Errorf("writing deposit transaction log: %w", err)
	}

	if err = e.transactions.UpdateStatus(ctx, dbTx, txn.ID, data.TransactionCompleted); err != nil {
		return nil, fmt.Errorf("completing deposit transaction: %w", err)
	}
	txn.Status = data.TransactionCompleted

	return txn, nil
}

// computeFee finds the bracket matching kind/amountCents and applies its
// fixed fee if set, else its percentage via exact decimal arithmetic rounded
// to the nearest cent. A missing bracket charges no fee.
func (e *Engine) computeFee(ctx context.Context, dbTx db.DBTransaction, kind string, amountCents int64) (int64, error) {
	bracket, err := e.transactionCosts.FindBracket(ctx, dbTx, kind, amountCents)
	if err != nil {
		return 0, err
	}
	if bracket == nil {
		return 0, nil
	}
	if bracket.FeeFixedCents != nil {
		return *bracket.FeeFixedCents, nil
	}
	if bracket.FeePercentage != nil {
		pct, err := decimal.NewFromString(*bracket.FeePercentage)
		if err != nil {
			return 0, fmt.Errorf("parsing fee percentage: %w", err)
		}
		fee := decimal.NewFromInt(amountCents).Mul(pct).DivRound(decimal.NewFromInt(100), 0)
		return fee.IntPart(), nil
	}
	return 0, nil
}

// creditFeesAccount posts the fee to the system:fees account when one
// exists in this ledger. A simulator without a fees account simply absorbs
// the fee into the source debit without a corresponding credit leg.
func (e *Engine) creditFeesAccount(ctx context.Context, dbTx db.DBTransaction, transactionID string, feeCents int64) error {
	feesAccount, err := e.findSystemFeesAccount(ctx, dbTx)
	if err != nil {
		return err
	}
	if feesAccount == nil {
		return nil
	}

	newBalance := feesAccount.BalanceCents + feeCents
	if err = e.accounts.UpdateBalance(ctx, dbTx, feesAccount.ID, newBalance); err != nil {
		return fmt.Errorf("crediting fees account: %w", err)
	}
	if _, err = e.transactionLogs.Insert(ctx, dbTx, transactionID, feesAccount.ID, data.DirectionCredit, feeCents, newBalance); err != nil {
		return fmt.Errorf("writing fees account transaction log: %w", err)
	}
	return nil
}

func (e *Engine) findSystemFeesAccount(ctx context.Context, dbTx db.DBTransaction) (*data.Account, error) {
	account, err := e.accounts.GetSystemFeesAccount(ctx, dbTx)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}
