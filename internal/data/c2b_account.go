package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pesaplay/mpesa-sim/db"
)

// ResponseType mirrors the Daraja C2B register contract: whether the
// validation leg is invoked before confirmation, or confirmation fires
// unconditionally.
type ResponseType string

const (
	ResponseTypeCompleted ResponseType = "Completed"
	ResponseTypeCancelled ResponseType = "Cancelled"
)

type PaybillAccountModel struct {
	dbConnectionPool db.DBConnectionPool
}

const paybillBaseQuery = `SELECT account_id, business_id, paybill_number, validation_url, confirmation_url, response_type FROM paybill_accounts`

func (m *PaybillAccountModel) Create(ctx context.Context, dbTx db.DBTransaction, accounts *AccountModel, businessID int64, paybillNumber string) (*PaybillAccount, error) {
	account, err := accounts.Create(ctx, dbTx, AccountTypePaybill)
	if err != nil {
		return nil, fmt.Errorf("creating paybill account: %w", err)
	}
	var paybill PaybillAccount
	query := `INSERT INTO paybill_accounts (account_id, business_id, paybill_number, response_type)
		VALUES ($1, $2, $3, $4)
		RETURNING account_id, business_id, paybill_number, validation_url, confirmation_url, response_type`
	err = dbTx.GetContext(ctx, &paybill, query, account.ID, businessID, paybillNumber, ResponseTypeCompleted)
	if err != nil {
		return nil, fmt.Errorf("creating paybill account: %w", err)
	}
	return &paybill, nil
}

func (m *PaybillAccountModel) GetByNumber(ctx context.Context, sqlExec db.SQLExecuter, businessID int64, paybillNumber string) (*PaybillAccount, error) {
	var paybill PaybillAccount
	query := paybillBaseQuery + ` WHERE business_id = $1 AND paybill_number = $2`
	if err := sqlExec.GetContext(ctx, &paybill, query, businessID, paybillNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting paybill %s: %w", paybillNumber, err)
	}
	return &paybill, nil
}

// SetURLs registers the validation/confirmation URLs, failing with
// ErrRecordExists if both are already set — the C2B register-url idempotence
// rule.
func (m *PaybillAccountModel) SetURLs(ctx context.Context, sqlExec db.SQLExecuter, accountID int64, validationURL, confirmationURL string, responseType ResponseType) error {
	query := `UPDATE paybill_accounts SET validation_url = $1, confirmation_url = $2, response_type = $3
		WHERE account_id = $4 AND (validation_url IS NULL OR confirmation_url IS NULL)`
	res, err := sqlExec.ExecContext(ctx, query, validationURL, confirmationURL, responseType, accountID)
	if err != nil {
		return fmt.Errorf("setting paybill %d urls: %w", accountID, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordExists
	}
	return nil
}

type TillAccountModel struct {
	dbConnectionPool db.DBConnectionPool
}

const tillBaseQuery = `SELECT account_id, business_id, till_number, validation_url, confirmation_url, response_type FROM till_accounts`

func (m *TillAccountModel) Create(ctx context.Context, dbTx db.DBTransaction, accounts *AccountModel, businessID int64, tillNumber string) (*TillAccount, error) {
	account, err := accounts.Create(ctx, dbTx, AccountTypeTill)
	if err != nil {
		return nil, fmt.Errorf("creating till account: %w", err)
	}
	var till TillAccount
	query := `INSERT INTO till_accounts (account_id, business_id, till_number, response_type)
		VALUES ($1, $2, $3, $4)
		RETURNING account_id, business_id, till_number, validation_url, confirmation_url, response_type`
	err = dbTx.GetContext(ctx, &till, query, account.ID, businessID, tillNumber, ResponseTypeCompleted)
	if err != nil {
		return nil, fmt.Errorf("creating till account: %w", err)
	}
	return &till, nil
}

func (m *TillAccountModel) GetByNumber(ctx context.Context, sqlExec db.SQLExecuter, businessID int64, tillNumber string) (*TillAccount, error) {
	var till TillAccount
	query := tillBaseQuery + ` WHERE business_id = $1 AND till_number = $2`
	if err := sqlExec.GetContext(ctx, &till, query, businessID, tillNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting till %s: %w", tillNumber, err)
	}
	return &till, nil
}

func (m *TillAccountModel) SetURLs(ctx context.Context, sqlExec db.SQLExecuter, accountID int64, validationURL, confirmationURL string, responseType ResponseType) error {
	query := `UPDATE till_accounts SET validation_url = $1, confirmation_url = $2, response_type = $3
		WHERE account_id = $4 AND (validation_url IS NULL OR confirmation_url IS NULL)`
	res, err := sqlExec.ExecContext(ctx, query, validationURL, confirmationURL, responseType, accountID)
	if err != nil {
		return fmt.Errorf("setting till %d urls: %w", accountID, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordExists
	}
	return nil
}
