package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

const sampleBlockResult = `{
	"result": {
		"block_number": 7,
		"block_hash": "0x7",
		"parent_hash": "0x6",
		"timestamp": 70,
		"l1_gas_price_and_fri": {
			"l1_gas_wei": "0x1", "l1_gas_fri": "0x2",
			"l1_data_gas_wei": "0x3", "l1_data_gas_fri": "0x4",
			"l2_gas_wei": "0x5", "l2_gas_fri": "0x6"
		},
		"transactions": [
			{"type": "INVOKE", "version": "0x1", "transaction_hash": "0xabc", "sender_address": "0x123"}
		]
	}
}`

func TestGetBlockByNumberDecodesWireShapeAndRetainsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleBlockResult))
	}))
	defer server.Close()

	client := NewJSONRPCClient(server.URL, nil)
	got, err := client.GetBlockByNumber(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, model.BlockPosition(7), got.Number)
	assert.Equal(t, common.HexToHash("0x7"), got.Hash)
	assert.Equal(t, common.HexToHash("0x6"), got.ParentHash)
	require.Len(t, got.Transactions, 1)

	tx := got.Transactions[0]
	assert.Equal(t, model.TxInvoke, tx.Type)
	assert.Equal(t, model.TxVersion(1), tx.Version)
	assert.Equal(t, common.HexToHash("0xabc"), tx.Hash)
	assert.NotEmpty(t, tx.Payload, "payload must retain the raw wire transaction for later re-injection")

	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(tx.Payload, &roundTrip))
	assert.Equal(t, "0x123", roundTrip["sender_address"])
}

func TestCallSurfacesRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": {"code": -32000, "message": "block not found"}}`))
	}))
	defer server.Close()

	client := NewJSONRPCClient(server.URL, nil)
	_, err := client.GetLatestAccepted(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block not found")
}

func TestDefaultAdaptersRoutesInjectThroughAdminRPC(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotMethod = req.Method
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": {"transaction_hash": "0xdeadbeef"}}`))
	}))
	defer server.Close()

	admin := NewJSONRPCClient(server.URL, nil)
	table := DefaultAdapters(admin)

	hash, err := table.Dispatch(context.Background(), model.Transaction{
		Type: model.TxInvoke, Version: 1, Payload: []byte(`{"type":"INVOKE"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xdeadbeef"), hash)
	assert.Equal(t, "starknet_addInvokeTransaction", gotMethod)
}
