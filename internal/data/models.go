// Package data holds the simulator's persistence models: thin wrappers over
// a db.DBConnectionPool exposing typed Insert/Update/Get operations for each
// entity in the ledger and sandbox schema.
package data

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)

// Models aggregates every entity model behind one dbConnectionPool, mirroring
// the teacher's top-level Models struct so handlers take a single dependency.
type Models struct {
	Accounts          *AccountModel
	Businesses        *BusinessModel
	BusinessOperators *BusinessOperatorModel
	Users             *UserModel
	PaybillAccounts   *PaybillAccountModel
	TillAccounts      *TillAccountModel
	Projects          *ProjectModel
	APIKeys           *APIKeyModel
	AccessTokens      *AccessTokenModel
	Transactions      *TransactionModel
	TransactionLogs   *TransactionLogModel
	TransactionCosts  *TransactionCostModel
	CallbackLogs      *CallbackLogModel
	APILogs           *APILogModel
}

func NewModels(dbConnectionPool db.DBConnectionPool) (*Models, error) {
	bracketCache, err := lru.New[string, []TransactionCost](bracketCacheSize)
	if err != nil {
		log.Errorf("creating transaction cost bracket cache, falling back to uncached lookups: %v", err)
		bracketCache = nil
	}

	return &Models{
		Accounts:          &AccountModel{dbConnectionPool: dbConnectionPool},
		Businesses:        &BusinessModel{dbConnectionPool: dbConnectionPool},
		BusinessOperators: &BusinessOperatorModel{dbConnectionPool: dbConnectionPool},
		Users:             &UserModel{dbConnectionPool: dbConnectionPool},
		PaybillAccounts:   &PaybillAccountModel{dbConnectionPool: dbConnectionPool},
		TillAccounts:      &TillAccountModel{dbConnectionPool: dbConnectionPool},
		Projects:          &ProjectModel{dbConnectionPool: dbConnectionPool},
		APIKeys:           &APIKeyModel{dbConnectionPool: dbConnectionPool},
		AccessTokens:      &AccessTokenModel{dbConnectionPool: dbConnectionPool},
		Transactions:      &TransactionModel{dbConnectionPool: dbConnectionPool},
		TransactionLogs:   &TransactionLogModel{dbConnectionPool: dbConnectionPool},
		TransactionCosts:  &TransactionCostModel{dbConnectionPool: dbConnectionPool, bracketCache: bracketCache},
		CallbackLogs:      &CallbackLogModel{dbConnectionPool: dbConnectionPool},
		APILogs:           &APILogModel{dbConnectionPool: dbConnectionPool},
	}, nil
}
