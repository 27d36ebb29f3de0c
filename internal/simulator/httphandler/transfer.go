package httphandler

import (
	"context"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/simulator"
)

// runTransfer opens the transaction a ledger.Engine.Transfer call must run
// inside and commits it on success, shared by every handler that moves
// money (STK Push, B2C, C2B confirmation).
func runTransfer(ctx context.Context, state *simulator.State, fromAccountID *int64, toAccountID int64, amountCents int64, kind string) (*data.Transaction, error) {
	return db.RunInTransactionWithResult(ctx, state.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Transaction, error) {
		return state.Ledger.Transfer(ctx, dbTx, fromAccountID, toAccountID, amountCents, kind)
	})
}
