package rpc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

// RawGasPrices is the wire shape a source block descriptor carries: hex
// strings for each of the three gas lanes, wei and fri denominations.
type RawGasPrices struct {
	L1GasWei, L1GasFri         string
	L1DataGasWei, L1DataGasFri string
	L2GasWei, L2GasFri         string
}

// ParseGasPrices converts every lane from a hex string to an integer,
// per spec §4.3's adminSetCustomHeader requirement.
func ParseGasPrices(raw RawGasPrices) (model.GasPrices, error) {
	var out model.GasPrices
	fields := []struct {
		name string
		src  string
		dst  **model.Felt
	}{
		{"l1_gas_wei", raw.L1GasWei, &out.L1GasWei},
		{"l1_gas_fri", raw.L1GasFri, &out.L1GasFri},
		{"l1_data_gas_wei", raw.L1DataGasWei, &out.L1DataGasWei},
		{"l1_data_gas_fri", raw.L1DataGasFri, &out.L1DataGasFri},
		{"l2_gas_wei", raw.L2GasWei, &out.L2GasWei},
		{"l2_gas_fri", raw.L2GasFri, &out.L2GasFri},
	}

	for _, f := range fields {
		v, err := hexutil.DecodeBig(f.src)
		if err != nil {
			return model.GasPrices{}, fmt.Errorf("invalid gas price for %s (%q): %w", f.name, f.src, err)
		}
		h := common.BigToHash(v)
		*f.dst = &h
	}

	return out, nil
}
