// Package credentials issues and validates the Project-scoped API key
// triples and bearer access tokens that every simulated Daraja endpoint
// checks before serving a request.
package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/data"
)

var (
	ErrTokenInvalid = errors.New("access token invalid")
	ErrTokenExpired = errors.New("access token expired")
)

const accessTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const accessTokenSize = 32

// Store issues ApiKey triples for a project and mints/validates bearer
// access tokens. Consumer secrets and tokens are kept and compared in
// cleartext: the simulator's Non-goals put balances/PINs in cleartext by
// design, so hashing just these credentials would be inconsistent invented
// rigor the spec never asks for.
type Store struct {
	dbConnectionPool db.DBConnectionPool
	apiKeys          *data.APIKeyModel
	accessTokens     *data.AccessTokenModel
}

func NewStore(dbConnectionPool db.DBConnectionPool, models *data.Models) *Store {
	return &Store{
		dbConnectionPool: dbConnectionPool,
		apiKeys:          models.APIKeys,
		accessTokens:     models.AccessTokens,
	}
}

// IssueAPIKeyTriple generates and persists a fresh consumer_key/secret/passkey
// triple for a project, called exactly once at project-creation time.
func (s *Store) IssueAPIKeyTriple(ctx context.Context, projectID int64) (*data.APIKey, error) {
	consumerKey, consumerSecret, passkey, err := data.GenerateAPIKeyTriple()
	if err != nil {
		return nil, fmt.Errorf("generating api key triple: %w", err)
	}
	apiKey, err := s.apiKeys.Insert(ctx, s.dbConnectionPool, projectID, consumerKey, consumerSecret, passkey)
	if err != nil {
		return nil, fmt.Errorf("persisting api key triple: %w", err)
	}
	return apiKey, nil
}

// GenerateAccessToken validates a consumer_key/consumer_secret pair (as
// presented to POST /oauth/v1/generate) and mints a fresh 1h bearer token.
func (s *Store) GenerateAccessToken(ctx context.Context, consumerKey, consumerSecret string) (*data.AccessToken, error) {
	apiKey, err := s.apiKeys.GetByConsumerKey(ctx, s.dbConnectionPool, consumerKey)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("looking up consumer key: %w", err)
	}
	if apiKey.ConsumerSecret != consumerSecret {
		return nil, ErrTokenInvalid
	}

	token, err := randomAlphabetString(accessTokenSize)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	accessToken, err := s.accessTokens.Insert(ctx, s.dbConnectionPool, token, apiKey.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("persisting access token: %w", err)
	}
	return accessToken, nil
}

// ValidateToken returns the project_id bound to a bearer token, rejecting
// tokens whose expires_at has passed even though no cleanup job has run yet.
func (s *Store) ValidateToken(ctx context.Context, token string) (int64, error) {
	accessToken, err := s.accessTokens.GetByToken(ctx, s.dbConnectionPool, token)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return 0, ErrTokenInvalid
		}
		return 0, fmt.Errorf("looking up access token: %w", err)
	}
	if time.Now().After(accessToken.ExpiresAt) {
		return 0, ErrTokenExpired
	}
	return accessToken.ProjectID, nil
}

func randomAlphabetString(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	out := make([]byte, size)
	for i, b := range raw {
		out[i] = accessTokenAlphabet[int(b)%len(accessTokenAlphabet)]
	}
	return string(out), nil
}
