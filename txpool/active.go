package txpool

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/NethermindEth/based-sequencer/txn"
)

// Active is the ordered set of senders currently eligible for inclusion
// (spec §4.2, "Active"). Entries are kept in insertion order; PopHighest
// scans them for the highest weight, breaking ties by earliest insertion.
//
// Grounded on the pool's own active_txs container (original sorting
// package): a per-sender map plus an order-preserving index, rather than a
// full sort on every read.
type Active struct {
	bySender map[common.Address]*txn.SimulatedTxList
	order    []common.Address // insertion order, oldest first
}

func NewActive() *Active {
	return &Active{bySender: make(map[common.Address]*txn.SimulatedTxList)}
}

// Put installs or replaces the entry for list's sender, preserving its
// original insertion position if one already existed (stable tie-break).
func (a *Active) Put(list *txn.SimulatedTxList) {
	sender := list.Sender()
	if _, exists := a.bySender[sender]; !exists {
		a.order = append(a.order, sender)
	}
	a.bySender[sender] = list
}

// Get returns the entry for sender, or nil if it has none.
func (a *Active) Get(sender common.Address) *txn.SimulatedTxList {
	return a.bySender[sender]
}

// RemoveFromSender drops sender's entry entirely (used once its TxList is
// exhausted or it has been evicted for a protocol violation).
func (a *Active) RemoveFromSender(sender common.Address) {
	if _, exists := a.bySender[sender]; !exists {
		return
	}
	delete(a.bySender, sender)
	for i, s := range a.order {
		if s == sender {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Clear empties the set, as handle_new_block does at every block boundary.
func (a *Active) Clear() {
	a.bySender = make(map[common.Address]*txn.SimulatedTxList)
	a.order = nil
}

func (a *Active) Len() int { return len(a.order) }

func (a *Active) Empty() bool { return len(a.order) == 0 }

// PopHighest removes and returns the highest-weight entry, the earliest
// inserted among ties. Returns false if the set is empty.
func (a *Active) PopHighest() (*txn.SimulatedTxList, bool) {
	best := -1
	for i, sender := range a.order {
		list := a.bySender[sender]
		if best == -1 || list.Weight().Cmp(a.bySender[a.order[best]].Weight()) > 0 {
			best = i
		}
	}
	if best == -1 {
		return nil, false
	}
	sender := a.order[best]
	list := a.bySender[sender]
	a.RemoveFromSender(sender)
	return list, true
}

// All returns every active entry, oldest-inserted first. Callers must not
// mutate the returned slice.
func (a *Active) All() []*txn.SimulatedTxList {
	out := make([]*txn.SimulatedTxList, 0, len(a.order))
	for _, sender := range a.order {
		out = append(out, a.bySender[sender])
	}
	return out
}
