// Package receipts implements the hash-to-receipt index the Eth API reads
// from (spec §5, "Shared-resource policy": "Receipt index (hash → receipt):
// written by sequencer at frag application, read by RPC. Reader-writer
// lock.").
package receipts

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/NethermindEth/based-sequencer/txn"
)

// Receipt is the subset of go-ethereum's types.Receipt the Eth API subset
// needs to answer eth_getTransactionReceipt, populated straight from a
// txn.SimulatedTx without going through a real trie-backed receipt root.
type Receipt struct {
	TxHash            common.Hash
	Status            uint64
	GasUsed           uint64
	CumulativeGasUsed uint64
	Logs              []*types.Log
	BlockNumber       uint64
	BlockHash         common.Hash
	TransactionIndex  uint
	ContractAddress   *common.Address

	// DepositNonce is set only for deposit txs once Regolith is active,
	// mirroring op-geth's receipt.DepositNonce (vanilla go-ethereum's
	// types.Receipt carries no such field, so it lives here instead).
	DepositNonce *uint64
}

// Index is a reader-writer-locked hash -> Receipt map. The sequencer is its
// only writer (at frag application and block seal); RPC handlers are its
// only readers.
type Index struct {
	mu   sync.RWMutex
	byTx map[common.Hash]*Receipt
}

func NewIndex() *Index {
	return &Index{byTx: make(map[common.Hash]*Receipt)}
}

// RecordFrag stores a provisional receipt for every tx in a just-sealed
// frag, with the frag's cumulative gas usage but no block hash yet (spec's
// "written by sequencer at frag application" — callers answering
// eth_getTransactionReceipt against a not-yet-sealed block see these).
func (idx *Index) RecordFrag(blockNumber uint64, txs []*txn.SimulatedTx, gasUsedBefore uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cumulative := gasUsedBefore
	for i, tx := range txs {
		cumulative += tx.GasUsed
		idx.byTx[tx.Tx.Hash()] = &Receipt{
			TxHash:            tx.Tx.Hash(),
			Status:            tx.Status,
			GasUsed:           tx.GasUsed,
			CumulativeGasUsed: cumulative,
			Logs:              tx.Logs,
			BlockNumber:       blockNumber,
			TransactionIndex:  uint(i),
			DepositNonce:      tx.DepositNonce,
		}
	}
}

// SetBlockHash backfills BlockHash on every receipt belonging to
// blockNumber, once the block's header (and therefore its hash) is known
// (spec §4.4 "Sealing the block" runs after every frag in the block has
// already been recorded).
func (idx *Index) SetBlockHash(blockNumber uint64, hash common.Hash) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range idx.byTx {
		if r.BlockNumber == blockNumber {
			r.BlockHash = hash
		}
	}
}

// Get returns the receipt for hash, or nil if unknown.
func (idx *Index) Get(hash common.Hash) *Receipt {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byTx[hash]
}
