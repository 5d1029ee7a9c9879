package sequencer

import (
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/p2pmsg"
	"github.com/NethermindEth/based-sequencer/txn"
)

// FragSequence accumulates one block's worth of sealed frags (spec §3,
// "FragSequence"): created at block start, destroyed on block seal.
type FragSequence struct {
	NextSeq      uint64
	GasUsed      uint64
	GasRemaining uint64
	Payment      *uint256.Int
	Txs          []*txn.SimulatedTx

	BlockNumber uint64
	Timestamp   uint64
}

// NewFragSequence opens the sequence for blockNumber with the block's full
// gas limit available.
func NewFragSequence(blockNumber, timestamp, gasLimit uint64) *FragSequence {
	return &FragSequence{
		GasRemaining: gasLimit,
		Payment:      uint256.NewInt(0),
		BlockNumber:  blockNumber,
		Timestamp:    timestamp,
	}
}

// SealFrag folds sorting's accumulated txs into the sequence, producing the
// FragV0 broadcast message for them and advancing NextSeq. isLast marks the
// block's final frag (spec §4.4, "Sealing a frag").
func (fs *FragSequence) SealFrag(sorting *SortingData, isLast bool) p2pmsg.FragV0 {
	rawTxs := make([][]byte, len(sorting.Txs))
	for i, sim := range sorting.Txs {
		rawTxs[i] = sim.Tx.Raw()
		fs.Txs = append(fs.Txs, sim)
	}
	fs.GasUsed += sorting.gasUsed()
	fs.GasRemaining = sorting.GasRemaining
	fs.Payment = new(uint256.Int).Add(fs.Payment, sorting.Payment)

	frag := p2pmsg.NewFragV0(fs.BlockNumber, fs.NextSeq, rawTxs, isLast)
	fs.NextSeq++
	return frag
}
