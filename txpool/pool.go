// Package txpool holds the per-sender pending queues and the Active set of
// currently-mineable senders (spec §4.2, "Transaction Pool").
package txpool

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
)

// TxPool is the sender-keyed queue of pending transactions plus the set of
// senders currently dispatched or ready for inclusion.
type TxPool struct {
	poolData map[common.Address]*txn.TxList
	active   *Active
}

func New() *TxPool {
	return &TxPool{poolData: make(map[common.Address]*txn.TxList), active: NewActive()}
}

func (p *TxPool) Active() *Active { return p.active }

func (p *TxPool) NumPending() int {
	n := 0
	for _, l := range p.poolData {
		n += l.Len()
	}
	return n
}

// HandleNewTx implements spec §4.2 "Ingress handle_new_tx": validates
// against the sender's current state nonce, rejects underbid replacements,
// inserts into the sender's TxList, and dispatches a top-of-frag simulation
// if the tx just became the sender's ready head.
func (p *TxPool) HandleNewTx(tx *txn.Transaction, frag *statedb.Frag, baseFee *uint256.Int, dispatcher Dispatcher) {
	sender := tx.Sender()
	stateNonce := frag.GetNonce(sender)

	if tx.Nonce() < stateNonce {
		log.Trace("txpool: dropping stale tx", "sender", sender, "nonce", tx.Nonce(), "stateNonce", stateNonce)
		return
	}

	list, exists := p.poolData[sender]
	if exists {
		if existingPrice := list.GetEffectivePriceForNonce(tx.Nonce(), baseFee); existingPrice.Cmp(tx.EffectiveGasPrice(baseFee)) >= 0 {
			log.Trace("txpool: dropping underbid replacement", "sender", sender, "nonce", tx.Nonce())
			return
		}
		list.Put(tx)
	} else {
		list = txn.NewTxList(tx)
		p.poolData[sender] = list
	}

	if ready := list.Ready(stateNonce, baseFee); ready != nil && tx.Nonce() == stateNonce {
		p.active.Put(txn.NewSimulatedTxList(list))
		dispatcher.DispatchTOF(ready, frag)
	}
}

// HandleSimulated implements spec §4.2 "Simulation result ingress": drops
// the result if the sender's TxList no longer exists, else installs it as
// the sender's Active.current.
func (p *TxPool) HandleSimulated(sim *txn.SimulatedTx) {
	sender := sim.Tx.Sender()
	if _, exists := p.poolData[sender]; !exists {
		log.Trace("txpool: dropping simulation for vanished sender", "sender", sender)
		return
	}
	entry := p.active.Get(sender)
	if entry == nil {
		list := p.poolData[sender]
		entry = txn.NewSimulatedTxList(list)
		p.active.Put(entry)
	}
	entry.Put(sim)
}

// HandleNewBlock implements spec §4.2 "Block-boundary handle_new_block":
// forwards every sender's TxList past its highest mined nonce (evicting
// exhausted senders), clears Active, and re-dispatches a fresh top-of-frag
// simulation for every sender whose head is mineable again.
func (p *TxPool) HandleNewBlock(minedTxs []*txn.Transaction, baseFee *uint256.Int, frag *statedb.Frag, dispatcher Dispatcher) {
	highestMined := make(map[common.Address]uint64, len(minedTxs))
	for _, tx := range minedTxs {
		if tx.IsDeposit() {
			continue // forced-inclusion txs never occupy a pool sender's nonce sequence
		}
		sender := tx.Sender()
		if nonce, seen := highestMined[sender]; !seen || tx.Nonce() > nonce {
			highestMined[sender] = tx.Nonce()
		}
	}

	// evicted dedups the senders whose TxList ran dry at this block's
	// highest mined nonce, across every sender touched, for a single
	// summary log line rather than one per sender.
	evicted := mapset.NewSet[common.Address]()
	for sender, nonce := range highestMined {
		list, exists := p.poolData[sender]
		if !exists {
			continue
		}
		if list.Forward(nonce) {
			delete(p.poolData, sender)
			evicted.Add(sender)
		}
	}
	if evicted.Cardinality() > 0 {
		log.Trace("txpool: evicted exhausted senders at block boundary", "count", evicted.Cardinality(), "senders", evicted.ToSlice())
	}

	p.active.Clear()

	for sender, list := range p.poolData {
		stateNonce := frag.GetNonce(sender)
		if ready := list.Ready(stateNonce, baseFee); ready != nil {
			p.active.Put(txn.NewSimulatedTxList(list))
			dispatcher.DispatchTOF(ready, frag)
		}
	}
}
