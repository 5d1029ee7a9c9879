package txn

import (
	"github.com/ethereum/go-ethereum/common"
)

// SimulatedTxList is one entry of the pool's Active set: a sender whose
// head-nonce tx is currently mineable, together with whatever has already
// been simulated for it (spec §3, "Active set").
type SimulatedTxList struct {
	// Current holds the most recent simulation result for the sender's head
	// tx, if one has come back yet.
	Current *SimulatedTx
	// Pending is the sender's queue, head included: the head stays in it
	// after a sim result arrives and leaves only on Pop.
	Pending *TxList
}

func NewSimulatedTxList(pending *TxList) *SimulatedTxList {
	return &SimulatedTxList{Pending: pending}
}

// Sender reports the list's owner, preferring the simulated current tx (it's
// cheaper than touching Pending) and falling back to the pending head.
func (s *SimulatedTxList) Sender() common.Address {
	if s.Current != nil {
		return s.Current.Tx.Sender()
	}
	if head := s.Pending.Head(); head != nil {
		return head.Sender()
	}
	return common.Address{}
}

// Weight is the ranking key used by the Active set ordering: the payment of
// the simulated current tx if one exists, else the pending head's priority
// fee (or infinite, for a deposit).
func (s *SimulatedTxList) Weight() Weight {
	if s.Current != nil {
		if s.Current.Tx.IsDeposit() {
			return InfiniteWeight()
		}
		return WeightOf(s.Current.Payment)
	}
	head := s.Pending.Head()
	if head == nil {
		return WeightOf(nil)
	}
	if head.IsDeposit() {
		return InfiniteWeight()
	}
	return WeightOf(head.GasTipCap())
}

// Pop removes the active (simulated-or-not) head transaction once it has
// been applied. Returns true if the sender has nothing left pending.
func (s *SimulatedTxList) Pop() bool {
	s.Current = nil
	if nonce, ok := s.headNonce(); ok {
		s.Pending.Forward(nonce)
	}
	return s.Pending.Empty()
}

func (s *SimulatedTxList) headNonce() (uint64, bool) {
	head := s.Pending.Head()
	if head == nil {
		return 0, false
	}
	return head.Nonce(), true
}

// Put installs a fresh simulation result as Current, overwriting whatever
// was there (a result only ever arrives for the list's current head).
func (s *SimulatedTxList) Put(tx *SimulatedTx) {
	s.Current = tx
}

// NextToSim returns the transaction that should be sent for (re-)simulation
// next: the pending head. Current, when set, is a result for that same head,
// so the head is returned whether or not Current is set.
func (s *SimulatedTxList) NextToSim() *Transaction {
	return s.Pending.Head()
}

func (s *SimulatedTxList) Len() int {
	n := s.Pending.Len()
	if s.Current != nil {
		n++
	}
	return n
}
