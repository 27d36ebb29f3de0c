package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

// Business owns one MMF and one Utility account plus any number of paybill
// and till accounts, and sets the default fee percentage charged on
// transfers it's party to.
type Business struct {
	ID            int64     `json:"id" db:"id"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	ShortCode     string    `json:"short_code" db:"short_code"`
	ChargesAmount int64     `json:"charges_amount" db:"charges_amount"` // flat default fee, minor units, defaults to 0
	MmfAccountID  int64     `json:"mmf_account_id" db:"mmf_account_id"`
	UtilityAccID  int64     `json:"utility_account_id" db:"utility_account_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type BusinessModel struct {
	dbConnectionPool db.DBConnectionPool
}

const businessBaseQuery = `SELECT id, display_name, short_code, charges_amount, mmf_account_id, utility_account_id, created_at FROM businesses`

type BusinessInsert struct {
	DisplayName   string `db:"display_name"`
	ShortCode     string `db:"short_code"`
	ChargesAmount int64  `db:"charges_amount"`
}

func (b BusinessInsert) Validate() error {
	if b.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	if b.ShortCode == "" {
		return fmt.Errorf("short_code is required")
	}
	return nil
}

// Create opens a Business together with its backing MMF and Utility
// accounts in one ledger-adjacent transaction, grounded on the invariant
// that a Business always owns exactly those two accounts.
func (m *BusinessModel) Create(ctx context.Context, dbTx db.DBTransaction, accounts *AccountModel, insert BusinessInsert) (*Business, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating business insert: %w", err)
	}

	mmf, err := accounts.Create(ctx, dbTx, AccountTypeMMF)
	if err != nil {
		return nil, fmt.Errorf("creating mmf account: %w", err)
	}
	utility, err := accounts.Create(ctx, dbTx, AccountTypeUtility)
	if err != nil {
		return nil, fmt.Errorf("creating utility account: %w", err)
	}

	var business Business
	query := `INSERT INTO businesses (display_name, short_code, charges_amount, mmf_account_id, utility_account_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, display_name, short_code, charges_amount, mmf_account_id, utility_account_id, created_at`
	err = dbTx.GetContext(ctx, &business, query, insert.DisplayName, insert.ShortCode, insert.ChargesAmount, mmf.ID, utility.ID)
	if err != nil {
		return nil, fmt.Errorf("creating business: %w", err)
	}
	return &business, nil
}

func (m *BusinessModel) GetByID(ctx context.Context, sqlExec db.SQLExecuter, id int64) (*Business, error) {
	var business Business
	query := businessBaseQuery + ` WHERE id = $1`
	if err := sqlExec.GetContext(ctx, &business, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting business by id %d: %w", id, err)
	}
	return &business, nil
}

func (m *BusinessModel) GetByShortCode(ctx context.Context, sqlExec db.SQLExecuter, shortCode string) (*Business, error) {
	var business Business
	query := businessBaseQuery + ` WHERE short_code = $1`
	if err := sqlExec.GetContext(ctx, &business, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting business by short code %s: %w", shortCode, err)
	}
	return &business, nil
}
