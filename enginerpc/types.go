// Package enginerpc wires the sequencer core to the engine API and the Eth
// API subset (spec §6, "External interfaces"), served over JWT-authed
// HTTP/WS via go-ethereum's node.Node the way the teacher's own auth test
// harness drives it (node.Config{JWTSecret, AuthAddr, AuthPort, ...}).
package enginerpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/NethermindEth/based-sequencer/sequencer"
)

// PayloadAttributesV3 is the JSON-RPC wire shape of engine_forkchoiceUpdatedV3's
// second parameter. It embeds the standard V3 fields plus the OP-stack
// forced-inclusion additions (spec §8.1, forced inclusions), kept as a
// dedicated wire type — rather than assuming a real op-geth fork's Go
// struct — for the same reason sequencer.PayloadAttributes is a local
// wrapper (see sequencer/context.go).
type PayloadAttributesV3 struct {
	Timestamp             hexutil.Uint64      `json:"timestamp"`
	Random                common.Hash         `json:"prevRandao"`
	SuggestedFeeRecipient common.Address      `json:"suggestedFeeRecipient"`
	Withdrawals           []*types.Withdrawal `json:"withdrawals"`
	BeaconRoot            *common.Hash        `json:"parentBeaconBlockRoot"`

	Transactions []hexutil.Bytes `json:"transactions,omitempty"`
	NoTxPool     bool            `json:"noTxPool,omitempty"`
	GasLimit     *hexutil.Uint64 `json:"gasLimit,omitempty"`
}

func (p *PayloadAttributesV3) toSequencer() *sequencer.PayloadAttributes {
	if p == nil {
		return nil
	}
	raws := make([][]byte, len(p.Transactions))
	for i, b := range p.Transactions {
		raws[i] = []byte(b)
	}
	var gasLimit *uint64
	if p.GasLimit != nil {
		v := uint64(*p.GasLimit)
		gasLimit = &v
	}
	return &sequencer.PayloadAttributes{
		PayloadAttributes: engine.PayloadAttributes{
			Timestamp:             uint64(p.Timestamp),
			Random:                p.Random,
			SuggestedFeeRecipient: p.SuggestedFeeRecipient,
			Withdrawals:           p.Withdrawals,
			BeaconRoot:            p.BeaconRoot,
		},
		Transactions: raws,
		NoTxPool:     p.NoTxPool,
		GasLimit:     gasLimit,
	}
}

// headerFromExecutableData rebuilds the header engine_newPayloadV3 describes,
// the inverse of what HandleGetPayload constructs on the building side.
func headerFromExecutableData(payload engine.ExecutableData, beaconRoot *common.Hash) *types.Header {
	var bloom types.Bloom
	copy(bloom[:], payload.LogsBloom)
	header := &types.Header{
		ParentHash:       payload.ParentHash,
		Coinbase:         payload.FeeRecipient,
		Root:             payload.StateRoot,
		ReceiptHash:      payload.ReceiptsRoot,
		Bloom:            bloom,
		Difficulty:       common.Big0,
		Number:           new(big.Int).SetUint64(payload.Number),
		GasLimit:         payload.GasLimit,
		GasUsed:          payload.GasUsed,
		Time:             payload.Timestamp,
		Extra:            payload.ExtraData,
		MixDigest:        payload.Random,
		BaseFee:          payload.BaseFeePerGas,
		ParentBeaconRoot: beaconRoot,
	}
	wroot := types.EmptyWithdrawalsHash
	header.WithdrawalsHash = &wroot
	return header
}
