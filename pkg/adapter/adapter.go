// Package adapter implements the "Dynamic variants" design note: a
// (TxType, TxVersion)-keyed dispatch table the RPC facade's adminInject
// calls through. The transaction-shape adapters themselves — translating
// each concrete payload into a target-node admin RPC call — are an
// out-of-scope external collaborator; this package only owns the
// routing table they register into. Grounded on
// internal/router/event_log_handler_router.go's signature-keyed handler
// map.
package adapter

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Injector translates one transaction into a target-node admin RPC call
// and returns the target-assigned transaction hash. The engine treats
// this as an atomic opaque operation.
type Injector func(ctx context.Context, tx model.Transaction) (common.Hash, error)

// tag uniquely identifies a (type, version) pair.
type tag struct {
	t model.TxType
	v model.TxVersion
}

// Table is a dispatch table from (type, version) to Injector.
type Table struct {
	handlers map[tag]Injector
}

// NewTable builds an empty dispatch table.
func NewTable() *Table {
	return &Table{handlers: make(map[tag]Injector)}
}

// Register binds an Injector to a (type, version) pair. Registering the
// same pair twice replaces the previous handler.
func (t *Table) Register(txType model.TxType, version model.TxVersion, fn Injector) {
	t.handlers[tag{txType, version}] = fn
}

// HasHandler reports whether a (type, version) pair has a registered
// adapter.
func (t *Table) HasHandler(txType model.TxType, version model.TxVersion) bool {
	_, ok := t.handlers[tag{txType, version}]
	return ok
}

// Dispatch routes tx to its registered Injector. An unregistered
// (type, version) pair returns a plain, unclassified error, so a
// caller's retry policy treats it like any other non-target-down
// failure.
func (t *Table) Dispatch(ctx context.Context, tx model.Transaction) (common.Hash, error) {
	fn, ok := t.handlers[tag{tx.Type, tx.Version}]
	if !ok {
		return common.Hash{}, fmt.Errorf("no adapter registered for transaction type %s version %d", tx.Type, tx.Version)
	}
	return fn(ctx, tx)
}
