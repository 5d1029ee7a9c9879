// Package p2pmsg defines the wire shapes of the outbound frag/seal stream
// (spec §6, "Outbound frag/seal stream"). The actual broadcast transport is
// out of scope for the core; this package only fixes the message shapes a
// downstream consumer decodes.
package p2pmsg

import (
	"github.com/ethereum/go-ethereum/common"
)

// FragV0 is an atomic extension of canonical state emitted mid-block. Frags
// within one block carry strictly increasing Seq starting at 0; the last one
// sets IsLast and is immediately followed by exactly one SealV0.
type FragV0 struct {
	BlockNumber uint64
	Seq         uint64
	TxsRLP      [][]byte
	IsLast      bool
}

// NewFragV0 packages already-encoded transaction envelopes (each tx's
// binary encoding, computed once when it was first decoded or signed) into
// a frag message. Taking raw bytes rather than *types.Transaction keeps
// this package ignorant of the txn package's deposit-tx representation.
func NewFragV0(blockNumber, seq uint64, rawTxs [][]byte, isLast bool) FragV0 {
	return FragV0{BlockNumber: blockNumber, Seq: seq, TxsRLP: rawTxs, IsLast: isLast}
}

// SealV0 is the terminating message for a block; it carries the block hash
// and all aggregate roots, and is emitted after the last frag.
type SealV0 struct {
	TotalFrags       uint64
	BlockNumber      uint64
	GasUsed          uint64
	GasLimit         uint64
	ParentHash       common.Hash
	TransactionsRoot common.Hash
	ReceiptsRoot     common.Hash
	StateRoot        common.Hash
	BlockHash        common.Hash
}
