package data

import (
	"context"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

// BusinessOperator is a contact record for whoever administers a Business in
// the simulator UI. It carries no auth role of its own: project access is
// still governed entirely by the project's API key triple.
type BusinessOperator struct {
	ID         int64     `json:"id" db:"id"`
	BusinessID int64     `json:"business_id" db:"business_id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type BusinessOperatorModel struct {
	dbConnectionPool db.DBConnectionPool
}

const businessOperatorBaseQuery = `SELECT id, business_id, name, email, created_at FROM business_operators`

type BusinessOperatorInsert struct {
	BusinessID int64
	Name       string
	Email      string
}

func (b BusinessOperatorInsert) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	if b.Email == "" {
		return fmt.Errorf("email is required")
	}
	return nil
}

func (m *BusinessOperatorModel) Create(ctx context.Context, sqlExec db.SQLExecuter, insert BusinessOperatorInsert) (*BusinessOperator, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating business operator insert: %w", err)
	}
	var operator BusinessOperator
	query := `INSERT INTO business_operators (business_id, name, email)
		VALUES ($1, $2, $3)
		RETURNING id, business_id, name, email, created_at`
	err := sqlExec.GetContext(ctx, &operator, query, insert.BusinessID, insert.Name, insert.Email)
	if err != nil {
		return nil, fmt.Errorf("creating business operator: %w", err)
	}
	return &operator, nil
}

func (m *BusinessOperatorModel) GetByBusinessID(ctx context.Context, sqlExec db.SQLExecuter, businessID int64) ([]BusinessOperator, error) {
	var operators []BusinessOperator
	query := businessOperatorBaseQuery + ` WHERE business_id = $1 ORDER BY created_at`
	if err := sqlExec.SelectContext(ctx, &operators, query, businessID); err != nil {
		return nil, fmt.Errorf("listing business operators for business %d: %w", businessID, err)
	}
	return operators, nil
}

func (m *BusinessOperatorModel) Delete(ctx context.Context, sqlExec db.SQLExecuter, id int64) error {
	res, err := sqlExec.ExecContext(ctx, `DELETE FROM business_operators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting business operator %d: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
