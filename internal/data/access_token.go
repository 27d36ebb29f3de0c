package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

const AccessTokenTTL = time.Hour

// AccessToken is the opaque bearer credential issued by /oauth/v1/generate
// and checked by every other simulated endpoint.
type AccessToken struct {
	Token     string    `json:"access_token" db:"token"`
	ProjectID int64     `json:"project_id" db:"project_id"`
	IssuedAt  time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

type AccessTokenModel struct {
	dbConnectionPool db.DBConnectionPool
}

func (m *AccessTokenModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, token string, projectID int64) (*AccessToken, error) {
	var accessToken AccessToken
	query := `INSERT INTO access_tokens (token, project_id, issued_at, expires_at)
		VALUES ($1, $2, now(), now() + interval '1 hour')
		RETURNING token, project_id, issued_at, expires_at`
	if err := sqlExec.GetContext(ctx, &accessToken, query, token, projectID); err != nil {
		return nil, fmt.Errorf("inserting access token: %w", err)
	}
	return &accessToken, nil
}

func (m *AccessTokenModel) GetByToken(ctx context.Context, sqlExec db.SQLExecuter, token string) (*AccessToken, error) {
	var accessToken AccessToken
	query := `SELECT token, project_id, issued_at, expires_at FROM access_tokens WHERE token = $1`
	if err := sqlExec.GetContext(ctx, &accessToken, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting access token: %w", err)
	}
	return &accessToken, nil
}
