package rpc

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGasPrices(t *testing.T) {
	raw := RawGasPrices{
		L1GasWei:     "0x1",
		L1GasFri:     "0x2",
		L1DataGasWei: "0x3",
		L1DataGasFri: "0x4",
		L2GasWei:     "0x5",
		L2GasFri:     "0x6",
	}

	out, err := ParseGasPrices(raw)
	require.NoError(t, err)

	assert.Equal(t, common.BigToHash(common.Big1), *out.L1GasWei)
	assert.Equal(t, uint64(6), out.L2GasFri.Big().Uint64())
}

func TestParseGasPricesInvalidHex(t *testing.T) {
	raw := RawGasPrices{
		L1GasWei:     "not-hex",
		L1GasFri:     "0x2",
		L1DataGasWei: "0x3",
		L1DataGasFri: "0x4",
		L2GasWei:     "0x5",
		L2GasFri:     "0x6",
	}

	_, err := ParseGasPrices(raw)
	require.Error(t, err)
}
