package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/starknet-replay/orchestrator/pkg/adapter"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

// JSONRPCClient is a minimal JSON-RPC 2.0 client satisfying Transport
// (and, for the target node, AdminTransport). It is the concrete
// realization of the "RPC client libraries" external collaborator
// spec.md §1 explicitly places out of scope for the engine itself —
// kept deliberately generic rather than a full Starknet client.
type JSONRPCClient struct {
	url        string
	httpClient *http.Client
}

// NewJSONRPCClient builds a client against the given endpoint.
func NewJSONRPCClient(url string, httpClient *http.Client) *JSONRPCClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &JSONRPCClient{url: url, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	var rr rpcResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("decode rpc result: %w", err)
	}
	return nil
}

// wireTx is the wire shape of a transaction as returned alongside a
// block, independent of its concrete (type, version) payload. Payload
// retains the full raw object so it can be resubmitted verbatim to the
// target's admin RPC on injection.
type wireTx struct {
	Type    string
	Version string
	Hash    string
	Payload json.RawMessage
}

func (t *wireTx) UnmarshalJSON(data []byte) error {
	var fields struct {
		Type    string `json:"type"`
		Version string `json:"version"`
		Hash    string `json:"transaction_hash"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode wire transaction: %w", err)
	}
	t.Type, t.Version, t.Hash = fields.Type, fields.Version, fields.Hash
	t.Payload = append(json.RawMessage(nil), data...)
	return nil
}

type wireBlock struct {
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	ParentHash  string   `json:"parent_hash"`
	Timestamp   uint64   `json:"timestamp"`
	GasPrices   wireGas  `json:"l1_gas_price_and_fri"`
	Txs         []wireTx `json:"transactions"`
}

type wireGas struct {
	L1GasWei     string `json:"l1_gas_wei"`
	L1GasFri     string `json:"l1_gas_fri"`
	L1DataGasWei string `json:"l1_data_gas_wei"`
	L1DataGasFri string `json:"l1_data_gas_fri"`
	L2GasWei     string `json:"l2_gas_wei"`
	L2GasFri     string `json:"l2_gas_fri"`
}

func (w wireBlock) toModel() (model.BlockDescriptor, error) {
	gas, err := ParseGasPrices(RawGasPrices{
		L1GasWei: w.GasPrices.L1GasWei, L1GasFri: w.GasPrices.L1GasFri,
		L1DataGasWei: w.GasPrices.L1DataGasWei, L1DataGasFri: w.GasPrices.L1DataGasFri,
		L2GasWei: w.GasPrices.L2GasWei, L2GasFri: w.GasPrices.L2GasFri,
	})
	if err != nil {
		return model.BlockDescriptor{}, err
	}

	txs := make([]model.Transaction, len(w.Txs))
	for i, t := range w.Txs {
		v, err := strconv.ParseUint(t.Version, 0, 8)
		if err != nil {
			return model.BlockDescriptor{}, fmt.Errorf("parse tx version %q: %w", t.Version, err)
		}
		txs[i] = model.Transaction{
			Type:    model.TxType(strings.ToLower(t.Type)),
			Version: model.TxVersion(v),
			Hash:    common.HexToHash(t.Hash),
			Payload: t.Payload,
		}
	}

	return model.BlockDescriptor{
		Number:       model.BlockPosition(w.BlockNumber),
		Hash:         common.HexToHash(w.BlockHash),
		ParentHash:   common.HexToHash(w.ParentHash),
		Timestamp:    w.Timestamp,
		GasPrices:    gas,
		Transactions: txs,
	}, nil
}

// GetBlockByNumber implements Transport.
func (c *JSONRPCClient) GetBlockByNumber(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	var w wireBlock
	if err := c.call(ctx, "starknet_getBlockWithTxs", map[string]any{"block_id": map[string]uint64{"block_number": uint64(n)}}, &w); err != nil {
		return model.BlockDescriptor{}, err
	}
	return w.toModel()
}

// GetBlockByTag implements Transport.
func (c *JSONRPCClient) GetBlockByTag(ctx context.Context, tag model.BlockTag) (model.BlockDescriptor, error) {
	var w wireBlock
	if err := c.call(ctx, "starknet_getBlockWithTxs", map[string]any{"block_id": string(tag)}, &w); err != nil {
		return model.BlockDescriptor{}, err
	}
	return w.toModel()
}

// GetLatestAccepted implements Transport.
func (c *JSONRPCClient) GetLatestAccepted(ctx context.Context) (model.BlockPosition, error) {
	var n uint64
	if err := c.call(ctx, "starknet_blockNumber", nil, &n); err != nil {
		return 0, err
	}
	return model.BlockPosition(n), nil
}

// SetCustomHeader implements AdminTransport.
func (c *JSONRPCClient) SetCustomHeader(ctx context.Context, n model.BlockPosition, timestamp uint64, gasPrices model.GasPrices, expectedHash common.Hash) error {
	return c.call(ctx, "devnet_setCustomBlockHeader", map[string]any{
		"block_number": uint64(n),
		"timestamp":    timestamp,
		"gas_prices": wireGas{
			L1GasWei: hexutil.EncodeBig(gasPrices.L1GasWei.Big()), L1GasFri: hexutil.EncodeBig(gasPrices.L1GasFri.Big()),
			L1DataGasWei: hexutil.EncodeBig(gasPrices.L1DataGasWei.Big()), L1DataGasFri: hexutil.EncodeBig(gasPrices.L1DataGasFri.Big()),
			L2GasWei: hexutil.EncodeBig(gasPrices.L2GasWei.Big()), L2GasFri: hexutil.EncodeBig(gasPrices.L2GasFri.Big()),
		},
		"expected_block_hash": expectedHash.Hex(),
	}, nil)
}

// CloseBlock implements AdminTransport.
func (c *JSONRPCClient) CloseBlock(ctx context.Context) error {
	return c.call(ctx, "devnet_closeBlock", nil, nil)
}

// GetReceipt implements AdminTransport.
func (c *JSONRPCClient) GetReceipt(ctx context.Context, hash common.Hash) (model.Receipt, error) {
	var wire struct {
		TransactionHash string `json:"transaction_hash"`
		ExecutionStatus string `json:"execution_status"`
	}
	if err := c.call(ctx, "starknet_getTransactionReceipt", map[string]string{"transaction_hash": hash.Hex()}, &wire); err != nil {
		return model.Receipt{}, err
	}
	return model.Receipt{
		TransactionHash: common.HexToHash(wire.TransactionHash),
		ExecutionStatus: model.ExecutionStatus(wire.ExecutionStatus),
	}, nil
}

// GetBlockWithReceipts implements AdminTransport.
func (c *JSONRPCClient) GetBlockWithReceipts(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error) {
	var wire struct {
		wireBlock
		Receipts []struct {
			TransactionHash string `json:"transaction_hash"`
			ExecutionStatus string `json:"execution_status"`
		} `json:"receipts"`
	}
	if err := c.call(ctx, "starknet_getBlockWithReceipts", map[string]any{"block_id": map[string]uint64{"block_number": uint64(n)}}, &wire); err != nil {
		return model.BlockDescriptor{}, nil, err
	}

	block, err := wire.wireBlock.toModel()
	if err != nil {
		return model.BlockDescriptor{}, nil, err
	}

	receipts := make([]model.Receipt, len(wire.Receipts))
	for i, r := range wire.Receipts {
		receipts[i] = model.Receipt{
			TransactionHash: common.HexToHash(r.TransactionHash),
			ExecutionStatus: model.ExecutionStatus(r.ExecutionStatus),
		}
	}
	return block, receipts, nil
}

// SplitTarget satisfies AdminTransport by routing plain reads (block
// fetch, latest-accepted) to a read-only target endpoint and
// admin-only operations (header stamp, close, inject, receipts) to a
// separate admin endpoint — the two distinct target-side URLs spec §6
// names (TARGET_RPC_URL and TARGET_ADMIN_RPC_URL).
type SplitTarget struct {
	Reads *JSONRPCClient
	Admin *JSONRPCClient
}

func (s SplitTarget) GetBlockByNumber(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, error) {
	return s.Reads.GetBlockByNumber(ctx, n)
}

func (s SplitTarget) GetBlockByTag(ctx context.Context, tag model.BlockTag) (model.BlockDescriptor, error) {
	return s.Reads.GetBlockByTag(ctx, tag)
}

func (s SplitTarget) GetLatestAccepted(ctx context.Context) (model.BlockPosition, error) {
	return s.Reads.GetLatestAccepted(ctx)
}

func (s SplitTarget) SetCustomHeader(ctx context.Context, n model.BlockPosition, timestamp uint64, gasPrices model.GasPrices, expectedHash common.Hash) error {
	return s.Admin.SetCustomHeader(ctx, n, timestamp, gasPrices, expectedHash)
}

func (s SplitTarget) CloseBlock(ctx context.Context) error { return s.Admin.CloseBlock(ctx) }

func (s SplitTarget) GetReceipt(ctx context.Context, hash common.Hash) (model.Receipt, error) {
	return s.Admin.GetReceipt(ctx, hash)
}

func (s SplitTarget) GetBlockWithReceipts(ctx context.Context, n model.BlockPosition) (model.BlockDescriptor, []model.Receipt, error) {
	return s.Admin.GetBlockWithReceipts(ctx, n)
}

// DefaultAdapters registers a generic pass-through Injector for every
// (type, version) pair spec §3 names, each submitting the transaction's
// raw payload to the target node's type-specific admin RPC method. The
// per-shape translation itself remains the out-of-scope adapter
// collaborator's concern; this is the dispatch wiring main() needs to
// have something registered.
func DefaultAdapters(admin *JSONRPCClient) *adapter.Table {
	table := adapter.NewTable()

	methodFor := func(t model.TxType) string {
		switch t {
		case model.TxInvoke:
			return "starknet_addInvokeTransaction"
		case model.TxDeclare:
			return "starknet_addDeclareTransaction"
		case model.TxDeployAccount:
			return "starknet_addDeployAccountTransaction"
		case model.TxL1Handler:
			return "devnet_addL1HandlerTransaction"
		default:
			return ""
		}
	}

	for _, txType := range []model.TxType{model.TxInvoke, model.TxDeclare, model.TxDeployAccount, model.TxL1Handler} {
		for v := model.TxVersion(0); v <= 3; v++ {
			method := methodFor(txType)
			table.Register(txType, v, func(ctx context.Context, tx model.Transaction) (common.Hash, error) {
				var out struct {
					TransactionHash string `json:"transaction_hash"`
				}
				if err := admin.call(ctx, method, json.RawMessage(tx.Payload), &out); err != nil {
					return common.Hash{}, err
				}
				return common.HexToHash(out.TransactionHash), nil
			})
		}
	}
	return table
}
