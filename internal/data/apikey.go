package data

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

const (
	apiKeyAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	ConsumerKeySize    = 32
	ConsumerSecretSize = 32
	PasskeySize        = 32
)

// APIKey is a Project's consumer_key/consumer_secret/passkey triple. Unlike
// the teacher's production API keys, these are stored in cleartext: the
// simulator's Non-goals explicitly put balances and PINs in cleartext, so
// hashing just the credentials would be inconsistent invented rigor.
type APIKey struct {
	ProjectID      int64     `json:"project_id" db:"project_id"`
	ConsumerKey    string    `json:"consumer_key" db:"consumer_key"`
	ConsumerSecret string    `json:"consumer_secret" db:"consumer_secret"`
	Passkey        string    `json:"passkey" db:"passkey"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type APIKeyModel struct {
	dbConnectionPool db.DBConnectionPool
}

const apiKeyBaseQuery = `SELECT project_id, consumer_key, consumer_secret, passkey, created_at FROM api_keys`

// GenerateAPIKeyTriple mints a fresh consumer key, consumer secret and
// passkey, using the teacher's base62-style alphabet keygen.
func GenerateAPIKeyTriple() (consumerKey, consumerSecret, passkey string, err error) {
	consumerKey, err = randomAlphabetString(ConsumerKeySize)
	if err != nil {
		return "", "", "", fmt.Errorf("generating consumer key: %w", err)
	}
	consumerSecret, err = randomAlphabetString(ConsumerSecretSize)
	if err != nil {
		return "", "", "", fmt.Errorf("generating consumer secret: %w", err)
	}
	passkey, err = randomAlphabetString(PasskeySize)
	if err != nil {
		return "", "", "", fmt.Errorf("generating passkey: %w", err)
	}
	return consumerKey, consumerSecret, passkey, nil
}

func randomAlphabetString(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	out := make([]byte, size)
	for i, b := range raw {
		out[i] = apiKeyAlphabet[int(b)%len(apiKeyAlphabet)]
	}
	return string(out), nil
}

func (m *APIKeyModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, projectID int64, consumerKey, consumerSecret, passkey string) (*APIKey, error) {
	var apiKey APIKey
	query := `INSERT INTO api_keys (project_id, consumer_key, consumer_secret, passkey)
		VALUES ($1, $2, $3, $4)
		RETURNING project_id, consumer_key, consumer_secret, passkey, created_at`
	err := sqlExec.GetContext(ctx, &apiKey, query, projectID, consumerKey, consumerSecret, passkey)
	if err != nil {
		return nil, fmt.Errorf("inserting api key: %w", err)
	}
	return &apiKey, nil
}

func (m *APIKeyModel) GetByConsumerKey(ctx context.Context, sqlExec db.SQLExecuter, consumerKey string) (*APIKey, error) {
	var apiKey APIKey
	query := apiKeyBaseQuery + ` WHERE consumer_key = $1`
	if err := sqlExec.GetContext(ctx, &apiKey, query, consumerKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting api key by consumer key: %w", err)
	}
	return &apiKey, nil
}

func (m *APIKeyModel) GetByProjectID(ctx context.Context, sqlExec db.SQLExecuter, projectID int64) (*APIKey, error) {
	var apiKey APIKey
	query := apiKeyBaseQuery + ` WHERE project_id = $1`
	if err := sqlExec.GetContext(ctx, &apiKey, query, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting api key by project id %d: %w", projectID, err)
	}
	return &apiKey, nil
}
