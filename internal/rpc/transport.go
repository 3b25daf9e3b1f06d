// Package rpc is the thin, typed facade over the source and target RPC
// clients (spec §4.3). The facade depends only on the small
// Transport/AdminTransport interfaces below; jsonrpc.go supplies a
// minimal JSON-RPC 2.0 client that implements them.
package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

// Transport is the read surface any Starknet-family JSON-RPC client
// exposes: fetch a block by number or tag, fetch the latest accepted
// height.
type Transport interface {
	GetBlockByNumber(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error)
	GetBlockByTag(ctx context.Context, tag model.BlockTag) (model.BlockDescriptor, error)
	GetLatestAccepted(ctx context.Context) (model.BlockPosition, error)
}

// AdminTransport is the target node's admin surface: header stamping,
// block close, and receipt lookup. Transaction injection is not part of
// it; it goes through the adapter dispatch table.
type AdminTransport interface {
	Transport
	SetCustomHeader(ctx context.Context, n model.BlockPosition, timestamp uint64, gasPrices model.GasPrices, expectedHash common.Hash) error
	CloseBlock(ctx context.Context) error
	GetReceipt(ctx context.Context, hash common.Hash) (model.Receipt, error)
	GetBlockWithReceipts(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error)
}
