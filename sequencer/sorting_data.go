package sequencer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
	"github.com/NethermindEth/based-sequencer/txpool"
)

// SortingData is the in-progress state of the frag currently being sorted
// (spec §3, "SortingData"): created at block start or right after a frag
// seals, destroyed on the next frag seal. Grounded directly on
// sorting_data.rs's field set and handle_sim/apply_and_send_next control
// flow, translated from Rust ownership into explicit Go methods.
type SortingData struct {
	Sort         *statedb.Sort
	GasRemaining uint64
	Payment      *uint256.Int
	Txs          []*txn.SimulatedTx

	// Until is the frag's sealing deadline.
	Until time.Time

	// InFlightSims counts simulations dispatched but not yet resolved. The
	// sequencer only applies NextToBeApplied and sends the next batch once
	// this reaches zero (spec §4.4, "Sorting main loop", step 2).
	InFlightSims int

	// TOFSnapshot holds the remaining candidate senders, ideally carrying
	// TOF simulation data as an initial value heuristic so not every
	// candidate needs a fresh resimulation after each applied tx.
	TOFSnapshot *txpool.Active

	// NextToBeApplied is the highest-payment simulated tx seen so far this
	// round, held until every in-flight sim has resolved.
	NextToBeApplied *txn.SimulatedTx
}

// NewSortingData opens a fresh sort snapshot over frag, seeded from active
// (a snapshot of the pool's Active set), unless noTxPool is set by the
// payload attributes, in which case sorting starts empty (spec §8.1,
// "no_tx_pool short-circuit").
func NewSortingData(frag *statedb.Frag, gasRemaining uint64, active *txpool.Active, noTxPool bool, fragDuration time.Duration) *SortingData {
	tof := txpool.NewActive()
	if !noTxPool && active != nil {
		for _, entry := range active.All() {
			tof.Put(entry)
		}
	}
	return &SortingData{
		Sort:         statedb.NewSort(frag),
		GasRemaining: gasRemaining,
		Payment:      uint256.NewInt(0),
		Until:        time.Now().Add(fragDuration),
		TOFSnapshot:  tof,
	}
}

func (s *SortingData) IsEmpty() bool { return len(s.Txs) == 0 }

func (s *SortingData) gasUsed() uint64 {
	var total uint64
	for _, tx := range s.Txs {
		total += tx.GasUsed
	}
	return total
}

// IsValid reports whether a result tagged with stateID is still current
// against this round's Sort view (spec §4.1 invariant).
func (s *SortingData) IsValid(stateID uint64) bool { return stateID == s.Sort.StateID() }

// ShouldSealFrag reports the deadline/dry-tof condition from spec §4.4 step
// 1: the deadline passing seals the frag outright, empty or not; running
// dry of candidates only seals early if something was actually applied.
func (s *SortingData) ShouldSealFrag() bool {
	if time.Now().After(s.Until) {
		return true
	}
	return !s.IsEmpty() && s.TOFSnapshot.Empty()
}

func (s *SortingData) ShouldSendNextSims() bool { return s.InFlightSims == 0 }

// HandleSimResult implements spec §4.4 "On sim-result": errors and
// over-budget gas evict the sender from tof_snapshot; otherwise the result
// only displaces NextToBeApplied on strictly greater payment (tie-break
// keeps incumbent, Open Question 1), and the loser goes back into
// tof_snapshot for reconsideration.
func (s *SortingData) HandleSimResult(sender common.Address, sim *txn.SimulatedTx, simErr error, baseFee *uint256.Int) {
	// Top-of-frag results dispatched by the pool were never counted here.
	if s.InFlightSims > 0 {
		s.InFlightSims--
	}

	if simErr != nil {
		log.Trace("sequencer: simulation failed, evicting sender", "sender", sender, "err", simErr)
		s.TOFSnapshot.RemoveFromSender(sender)
		return
	}
	if sim.GasUsed > s.GasRemaining {
		log.Trace("sequencer: simulated gas exceeds remaining, evicting sender", "sender", sender, "gasUsed", sim.GasUsed, "remaining", s.GasRemaining)
		s.TOFSnapshot.RemoveFromSender(sender)
		return
	}

	var losing *txn.SimulatedTx
	weight := txn.WeightOf(sim.Payment)
	if sim.Tx.IsDeposit() {
		weight = txn.InfiniteWeight()
	}
	if s.NextToBeApplied == nil || weight.Cmp(currentWeight(s.NextToBeApplied)) > 0 {
		losing = s.NextToBeApplied
		s.NextToBeApplied = sim
	} else {
		losing = sim
	}
	if losing != nil {
		entry := s.TOFSnapshot.Get(losing.Tx.Sender())
		if entry == nil {
			entry = txn.NewSimulatedTxList(txn.NewTxList(losing.Tx))
		}
		entry.Put(losing)
		s.TOFSnapshot.Put(entry)
	}
}

func currentWeight(sim *txn.SimulatedTx) txn.Weight {
	if sim.Tx.IsDeposit() {
		return txn.InfiniteWeight()
	}
	return txn.WeightOf(sim.Payment)
}

// MaybeApply commits NextToBeApplied into Sort and moves it into Txs, if
// one is pending (spec §4.4 step 2, first bullet).
func (s *SortingData) MaybeApply() {
	if s.NextToBeApplied == nil {
		return
	}
	tx := s.NextToBeApplied
	s.NextToBeApplied = nil
	s.TOFSnapshot.RemoveFromSender(tx.Tx.Sender())
	s.applyTx(tx)
}

func (s *SortingData) applyTx(tx *txn.SimulatedTx) {
	s.Sort.Commit(tx.Delta)
	s.GasRemaining -= tx.GasUsed
	s.Payment = new(uint256.Int).Add(s.Payment, tx.Payment)
	s.Txs = append(s.Txs, tx)
}

// NextBatch returns up to n candidate heads from the top of tof_snapshot to
// dispatch for (re-)simulation, incrementing InFlightSims for each.
func (s *SortingData) NextBatch(n int) []*txn.Transaction {
	var batch []*txn.Transaction
	var popped []*txn.SimulatedTxList
	for len(batch) < n {
		entry, ok := s.TOFSnapshot.PopHighest()
		if !ok {
			break
		}
		popped = append(popped, entry)
		if tx := entry.NextToSim(); tx != nil {
			batch = append(batch, tx)
			s.InFlightSims++
		}
	}
	for _, entry := range popped {
		s.TOFSnapshot.Put(entry)
	}
	return batch
}
