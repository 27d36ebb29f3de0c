// Package domainevents emits host-visible events whenever ledger state
// changes, decoupling internal/ledger from the eventbus so the engine stays
// testable without a bus.
package domainevents

import (
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/eventbus"
)

// Dispatcher emits new_transaction whenever the ledger commits a Transaction.
type Dispatcher struct {
	bus eventbus.Bus
}

func NewDispatcher(bus eventbus.Bus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

func (d *Dispatcher) TransactionCommitted(txn *data.Transaction) {
	_ = d.bus.EmitAll(eventbus.EventNewTransaction, txn)
}
