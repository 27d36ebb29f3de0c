package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pesaplay/mpesa-sim/db"
)

type UserModel struct {
	dbConnectionPool db.DBConnectionPool
}

const userBaseQuery = `SELECT account_id, phone, pin FROM users`

// Create opens a User's backing Account and its phone/pin row together,
// mirroring BusinessModel.Create's account-then-specialization shape.
func (m *UserModel) Create(ctx context.Context, dbTx db.DBTransaction, accounts *AccountModel, phone, pin string) (*User, error) {
	account, err := accounts.Create(ctx, dbTx, AccountTypeUser)
	if err != nil {
		return nil, fmt.Errorf("creating user account: %w", err)
	}

	var user User
	query := `INSERT INTO users (account_id, phone, pin) VALUES ($1, $2, $3) RETURNING account_id, phone, pin`
	if err := dbTx.GetContext(ctx, &user, query, account.ID, phone, pin); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &user, nil
}

func (m *UserModel) GetByPhone(ctx context.Context, sqlExec db.SQLExecuter, phone string) (*User, error) {
	var user User
	query := userBaseQuery + ` WHERE phone = $1`
	if err := sqlExec.GetContext(ctx, &user, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting user by phone %s: %w", phone, err)
	}
	return &user, nil
}

func (m *UserModel) GetByAccountID(ctx context.Context, sqlExec db.SQLExecuter, accountID int64) (*User, error) {
	var user User
	query := userBaseQuery + ` WHERE account_id = $1`
	if err := sqlExec.GetContext(ctx, &user, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting user by account %d: %w", accountID, err)
	}
	return &user, nil
}
