// Package simulator runs one worker per CPU core, each executing candidate
// transactions against a read-only state snapshot (spec §4.3, "Simulator
// Worker").
package simulator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
)

// BlockEnv is the per-block execution context every simulation runs
// against — the EvmBlockParams message of spec §4.3, minus the spec id
// (left to the Evaluator implementation to interpret).
type BlockEnv struct {
	Number         uint64
	Timestamp      uint64
	Coinbase       common.Address
	GasLimit       uint64
	BaseFee        *uint256.Int
	RegolithActive bool
}

// Evaluator stands in for the concrete EVM interpreter, which spec §1
// explicitly treats as an external collaborator out of scope for this
// module. Everything in this package is written against this interface so
// a real go-ethereum vm.EVM-backed implementation can be substituted
// without touching worker.go or the pool wiring.
type Evaluator interface {
	// SetBlockEnv updates the block-wide context every subsequent Execute
	// call runs under, including whether Regolith is active (as the caller
	// computed it into env.RegolithActive).
	SetBlockEnv(env BlockEnv)
	// Execute runs tx against view (a *statedb.Frag or *statedb.Sort
	// snapshot, both satisfying statedb.View) and returns the outcome.
	// Execute must never mutate view: snapshots are read-only by contract.
	Execute(view statedb.View, tx *txn.Transaction) (ExecResult, error)
}

// ExecResult is everything an Evaluator produces for one transaction,
// before the worker folds in the payment/deposit-nonce bookkeeping that
// turns it into a txn.SimulatedTx.
type ExecResult struct {
	Status        uint64
	GasUsed       uint64
	Logs          []*types.Log
	Output        []byte
	Delta         statedb.StateBundle
	CoinbaseAfter *big.Int
}
