package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pesaplay/mpesa-sim/db"
)

// TransactionCost is one fee bracket: for a TransactionType, amounts in
// [MinAmountCents, MaxAmountCents] are charged FeeFixedCents if set, else
// amount * FeePercentage (computed in the ledger engine via shopspring/decimal
// and rounded to the nearest cent).
type TransactionCost struct {
	ID              int64    `json:"id" db:"id"`
	TransactionType string   `json:"transaction_type" db:"transaction_type"`
	MinAmountCents  int64    `json:"min_amount_cents" db:"min_amount_cents"`
	MaxAmountCents  int64    `json:"max_amount_cents" db:"max_amount_cents"`
	FeeFixedCents   *int64   `json:"fee_fixed_cents,omitempty" db:"fee_fixed_cents"`
	FeePercentage   *string  `json:"fee_percentage,omitempty" db:"fee_percentage"`
}

// bracketCacheSize bounds how many distinct transaction types keep a cached
// bracket list; the simulator only ever defines a handful (stk_push, b2c,
// c2b), so this is never evicted under real use.
const bracketCacheSize = 64

type TransactionCostModel struct {
	dbConnectionPool db.DBConnectionPool
	// bracketCache holds the full, min_amount_cents-ascending bracket list
	// per transaction type, read far more often (once per transfer) than it
	// changes (an operator editing fee tiers). Nil when construction fails,
	// in which case FindBracket falls back to querying every time.
	bracketCache *lru.Cache[string, []TransactionCost]
}

const transactionCostBaseQuery = `SELECT id, transaction_type, min_amount_cents, max_amount_cents, fee_fixed_cents, fee_percentage FROM transaction_costs`

type TransactionCostInsert struct {
	TransactionType string
	MinAmountCents  int64
	MaxAmountCents  int64
	FeeFixedCents   *int64
	FeePercentage   *string
}

func (t TransactionCostInsert) Validate() error {
	if t.TransactionType == "" {
		return fmt.Errorf("transaction_type is required")
	}
	if t.MaxAmountCents < t.MinAmountCents {
		return fmt.Errorf("max_amount_cents must be >= min_amount_cents")
	}
	if t.FeeFixedCents == nil && t.FeePercentage == nil {
		return fmt.Errorf("one of fee_fixed_cents or fee_percentage is required")
	}
	return nil
}

func (m *TransactionCostModel) Create(ctx context.Context, sqlExec db.SQLExecuter, insert TransactionCostInsert) (*TransactionCost, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating transaction cost insert: %w", err)
	}
	var cost TransactionCost
	query := `INSERT INTO transaction_costs (transaction_type, min_amount_cents, max_amount_cents, fee_fixed_cents, fee_percentage)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, transaction_type, min_amount_cents, max_amount_cents, fee_fixed_cents, fee_percentage`
	err := sqlExec.GetContext(ctx, &cost, query, insert.TransactionType, insert.MinAmountCents, insert.MaxAmountCents, insert.FeeFixedCents, insert.FeePercentage)
	if err != nil {
		return nil, fmt.Errorf("creating transaction cost: %w", err)
	}
	m.invalidate(cost.TransactionType)
	return &cost, nil
}

func (m *TransactionCostModel) List(ctx context.Context, sqlExec db.SQLExecuter) ([]TransactionCost, error) {
	var costs []TransactionCost
	query := transactionCostBaseQuery + ` ORDER BY transaction_type, min_amount_cents`
	if err := sqlExec.SelectContext(ctx, &costs, query); err != nil {
		return nil, fmt.Errorf("listing transaction costs: %w", err)
	}
	return costs, nil
}

func (m *TransactionCostModel) Update(ctx context.Context, sqlExec db.SQLExecuter, id int64, feeFixedCents *int64, feePercentage *string) error {
	query := `UPDATE transaction_costs SET fee_fixed_cents = $1, fee_percentage = $2 WHERE id = $3`
	res, err := sqlExec.ExecContext(ctx, query, feeFixedCents, feePercentage, id)
	if err != nil {
		return fmt.Errorf("updating transaction cost %d: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	if m.bracketCache != nil {
		m.bracketCache.Purge()
	}
	return nil
}

func (m *TransactionCostModel) Delete(ctx context.Context, sqlExec db.SQLExecuter, id int64) error {
	res, err := sqlExec.ExecContext(ctx, `DELETE FROM transaction_costs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting transaction cost %d: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	if m.bracketCache != nil {
		m.bracketCache.Purge()
	}
	return nil
}

func (m *TransactionCostModel) invalidate(transactionType string) {
	if m.bracketCache != nil {
		m.bracketCache.Remove(transactionType)
	}
}

// FindBracket returns the bracket matching transactionType whose
// [min,max] range contains amountCents, or (nil, nil) if none matches — the
// ledger engine treats a miss as a zero fee, not an error. The candidate list
// per transactionType is read through bracketCache, since the ledger calls
// this on every transfer but the cost table changes only via admin CRUD.
func (m *TransactionCostModel) FindBracket(ctx context.Context, sqlExec db.SQLExecuter, transactionType string, amountCents int64) (*TransactionCost, error) {
	brackets, err := m.bracketsForType(ctx, sqlExec, transactionType)
	if err != nil {
		return nil, err
	}
	for _, bracket := range brackets {
		if bracket.MinAmountCents <= amountCents && bracket.MaxAmountCents >= amountCents {
			b := bracket
			return &b, nil
		}
	}
	return nil, nil
}

// bracketsForType returns every bracket for transactionType ordered by
// min_amount_cents descending, so the first match in FindBracket's scan is
// the narrowest (highest-min) bracket, matching the SQL ORDER BY this
// replaced.
func (m *TransactionCostModel) bracketsForType(ctx context.Context, sqlExec db.SQLExecuter, transactionType string) ([]TransactionCost, error) {
	if m.bracketCache != nil {
		if cached, ok := m.bracketCache.Get(transactionType); ok {
			return cached, nil
		}
	}

	var brackets []TransactionCost
	query := transactionCostBaseQuery + ` WHERE transaction_type = $1 ORDER BY min_amount_cents DESC`
	if err := sqlExec.SelectContext(ctx, &brackets, query, transactionType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading transaction cost brackets: %w", err)
	}

	if m.bracketCache != nil {
		m.bracketCache.Add(transactionType, brackets)
	}
	return brackets, nil
}
