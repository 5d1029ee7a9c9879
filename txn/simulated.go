package txn

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/statedb"
)

// SimulatedTx is a Transaction plus its execution result: receipt fields,
// the coinbase payment it produced, and the DB version id it was simulated
// against (spec §3, "SimulatedTx").
type SimulatedTx struct {
	Tx      *Transaction
	Status  uint64 // types.ReceiptStatusSuccessful / Failed
	GasUsed uint64
	Logs    []*types.Log
	Output  []byte

	// Payment is the coinbase balance delta this tx produced (after - before).
	// Deposits never pay, so Payment is always zero for them; ranking uses
	// Infinite weight instead, see Weight().
	Payment *uint256.Int

	// DepositNonce is populated only for deposit txs once Regolith is active,
	// reconstructing receipt.DepositNonce per the OP spec.
	DepositNonce *uint64

	// Delta is the set of per-account changes the simulation produced, in
	// exactly the shape the layered DB's Commit/CommitFlatChanges accept -
	// so it can be handed to the next layer without translation.
	Delta statedb.StateBundle

	// VersionID is the state id of the DB layer this result was produced
	// against (spec §4.1 invariant: only valid while still current).
	VersionID uint64
}

// Receipt builds the types.Receipt for this tx given the cumulative gas used
// up to and including it, matching go-ethereum's receipt shape so the
// receipts root/receipt index can be computed the normal way.
func (s *SimulatedTx) Receipt(cumulativeGasUsed uint64) *types.Receipt {
	r := &types.Receipt{
		Type:              receiptType(s.Tx),
		Status:            s.Status,
		CumulativeGasUsed: cumulativeGasUsed,
		GasUsed:           s.GasUsed,
		Logs:              s.Logs,
		TxHash:            s.Tx.Hash(),
	}
	if r.Logs == nil {
		r.Logs = []*types.Log{}
	}
	r.Bloom = types.CreateBloom(types.Receipts{r})
	return r
}

func receiptType(tx *Transaction) uint8 {
	switch tx.Kind() {
	case KindLegacy:
		return types.LegacyTxType
	case KindAccessList:
		return types.AccessListTxType
	case KindDynamicFee:
		return types.DynamicFeeTxType
	case KindAuthList:
		return types.SetCodeTxType
	default:
		return 0x7E // deposit tx type, matches OP-stack's reserved type byte
	}
}

// Weight is the ranking key used across the Active set: deposits always
// outrank everything, otherwise higher payment wins.
type Weight struct {
	Infinite bool
	Value    *uint256.Int
}

func InfiniteWeight() Weight { return Weight{Infinite: true} }

func WeightOf(v *uint256.Int) Weight { return Weight{Value: v} }

// Cmp returns -1, 0, 1 the way uint256.Int.Cmp does: w < o, w == o, w > o.
func (w Weight) Cmp(o Weight) int {
	switch {
	case w.Infinite && o.Infinite:
		return 0
	case w.Infinite:
		return 1
	case o.Infinite:
		return -1
	default:
		return w.Value.Cmp(o.Value)
	}
}
