package txpool

import (
	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
)

// Dispatcher hands a candidate transaction to the simulator worker pool
// (spec §4.3). TxPool never talks to workers directly; it only knows this
// narrow interface, which the sequencer wires to the real pool at startup.
type Dispatcher interface {
	// DispatchTOF requests a top-of-frag simulation against frag.
	DispatchTOF(tx *txn.Transaction, frag *statedb.Frag)
}
