package sequencer

import (
	"time"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/receipts"
	"github.com/NethermindEth/based-sequencer/simulator"
	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
	"github.com/NethermindEth/based-sequencer/txpool"
)

// PayloadAttributes extends the standard engine API attributes with the
// OP-stack forced-inclusion fields carried by PayloadAttributesV3 in an
// op-stack rollup (spec §4.4, "Entering Sorting" / §8.1 supplemented
// features). Kept as a local wrapper rather than assumed upstream fields:
// vanilla go-ethereum's engine.PayloadAttributes carries none of these, and
// the exact field names of a real op-geth fork were not safe to guess.
type PayloadAttributes struct {
	engine.PayloadAttributes

	// Transactions are forced-inclusion tx envelopes (deposit/L1-info),
	// applied sequentially before any pool tx (spec §8 scenario 5).
	Transactions [][]byte
	// NoTxPool, when true, seeds an empty tof_snapshot: the block contains
	// only forced inclusions (spec §8.1, "no_tx_pool short-circuit").
	NoTxPool bool
	// GasLimit overrides the parent header's gas limit for this block, if set.
	GasLimit *uint64
}

// Config holds the sequencer's tunables, wired from CLI flags in
// cmd/basedseq.
type Config struct {
	FragDuration  time.Duration
	SimsPerLoop   int
	MinLoopSleep  time.Duration
	ChainID       uint64
	RegolithTime  *uint64
}

// Context owns everything the sequencer needs across state transitions:
// the pool, the shared Frag view, the parent header, and the current
// block's payload attributes (spec §3, "SequencerContext").
type Context struct {
	Config Config

	Pool *txpool.TxPool
	Base *statedb.Base
	Frag *statedb.Frag

	Simulators *simulator.Pool

	// Receipts is the hash->receipt index the Eth API subset answers
	// eth_getTransactionReceipt from (spec §5, "Receipt index"). Nil is
	// valid in tests that never query it.
	Receipts *receipts.Index

	// ForcedEvaluator runs forced-inclusion transactions synchronously
	// against the Sort view at the start of a block, before any pool tx is
	// considered (spec §8 scenario 5). It is a separate Evaluator instance
	// from the pool's workers so forced-inclusion execution never contends
	// with the worker pool's request channel.
	ForcedEvaluator simulator.Evaluator

	ParentHeader      *types.Header
	PayloadAttributes *PayloadAttributes
	Coinbase          common.Address
	BaseFee           *uint256.Int
}

func (c *Context) RegolithActive(timestamp uint64) bool {
	return c.Config.RegolithTime != nil && timestamp >= *c.Config.RegolithTime
}

// ForcedInclusionTxs decodes the payload attributes' raw transaction
// envelopes into txn.Transaction. Real OP-stack forced inclusions are
// deposit txs (EIP-2718 type 0x7E, unsigned), which vanilla go-ethereum's
// UnmarshalBinary doesn't recognize; those go through txn.DecodeDeposit. Any
// other entry is an ordinary signed envelope (e.g. a conformance test
// replaying a signed tx as a forced inclusion) and goes through txn.Decode.
func (c *Context) ForcedInclusionTxs(signer types.Signer) ([]*txn.Transaction, error) {
	if c.PayloadAttributes == nil {
		return nil, nil
	}
	txs := make([]*txn.Transaction, 0, len(c.PayloadAttributes.Transactions))
	for _, raw := range c.PayloadAttributes.Transactions {
		if len(raw) > 0 && raw[0] == txn.DepositTxType {
			deposit, hash, err := txn.DecodeDeposit(raw)
			if err != nil {
				return nil, err
			}
			txs = append(txs, txn.NewDeposit(deposit, hash, raw))
			continue
		}
		tx, err := txn.Decode(raw, signer)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
