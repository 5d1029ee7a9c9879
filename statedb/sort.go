package statedb

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Sort is a single-writer cache over Frag used to sort one frag at a time
// (spec §4.1, "Sort"). commit advances state_id; Clone hands a versioned
// snapshot to a simulator so it can run a TOF-independent in-sort
// simulation without racing the sequencer's own writes.
//
// Sort is deliberately not safe for concurrent writers: the design calls
// out the sequencer as Sort's only writer, with snapshots handed out by
// value for readers. There is no internal lock.
type Sort struct {
	frag *Frag

	accounts map[common.Address]*Account
	code     map[common.Hash][]byte
	storage  map[storageKey]common.Hash

	stateID uint64
}

// NewSort opens a fresh sort view over frag, starting at frag's current
// state_id - one per SortingData lifetime (created at block start or after
// each sealed frag). Until the first Commit, a result simulated against frag
// itself carries the same version id as this view.
func NewSort(frag *Frag) *Sort {
	return &Sort{
		frag:     frag,
		stateID:  frag.StateID(),
		accounts: make(map[common.Address]*Account),
		code:     make(map[common.Hash][]byte),
		storage:  make(map[storageKey]common.Hash),
	}
}

func (s *Sort) BasicRef(addr common.Address) *Account {
	if acc, ok := s.accounts[addr]; ok {
		return acc
	}
	return s.frag.BasicRef(addr)
}

func (s *Sort) StorageRef(addr common.Address, key common.Hash) common.Hash {
	sk := storageKey{addr, key}
	if v, ok := s.storage[sk]; ok {
		return v
	}
	return s.frag.StorageRef(addr, key)
}

func (s *Sort) CodeByHashRef(hash common.Hash) []byte {
	if code, ok := s.code[hash]; ok {
		return code
	}
	return s.frag.CodeByHashRef(hash)
}

func (s *Sort) BlockHashRef(n uint64) common.Hash {
	return s.frag.BlockHashRef(n)
}

func (s *Sort) GetNonce(addr common.Address) uint64 {
	acc := s.BasicRef(addr)
	if acc == nil {
		return 0
	}
	return acc.Nonce
}

func (s *Sort) GetBalance(addr common.Address) *big.Int {
	acc := s.BasicRef(addr)
	if acc == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(acc.Balance)
}

func (s *Sort) CalculateStateRoot(bundle StateBundle) (common.Hash, TrieUpdates) {
	return s.frag.CalculateStateRoot(bundle)
}

func (s *Sort) StateID() uint64 { return s.stateID }

func (s *Sort) HeadBlockNumber() uint64 { return s.frag.HeadBlockNumber() }

// Commit applies one simulated tx's state delta, advancing state_id. The
// caller is responsible for having already checked the dispatched version
// id matches StateID() before calling; Commit itself does not re-check
// (that check is SortingData.IsValid's job, called from
// Sequencer.HandleSimResult, where the stale-drop decision is made).
func (s *Sort) Commit(bundle StateBundle) {
	for addr, w := range bundle {
		if w.Deleted {
			delete(s.accounts, addr)
			continue
		}
		acc := s.accounts[addr]
		if acc != nil {
			cp := *acc
			acc = &cp
		} else if base := s.frag.BasicRef(addr); base != nil {
			cp := *base
			acc = &cp
		} else {
			acc = &Account{Balance: new(big.Int)}
		}
		if w.Nonce != nil {
			acc.Nonce = *w.Nonce
		}
		if w.Balance != nil {
			acc.Balance = w.Balance
		}
		if w.CodeHash != nil {
			acc.CodeHash = *w.CodeHash
		}
		s.accounts[addr] = acc

		if w.Code != nil {
			s.code[acc.CodeHash] = w.Code
		}
		for slot, val := range w.Storage {
			s.storage[storageKey{addr, slot}] = val
		}
	}
	s.stateID++
}

// Clone returns an independent, versioned snapshot of the current sort
// state - the handle dispatched to a simulator for an in-sort simulation.
// The returned Sort shares the underlying Frag but has its own copy-on-read
// cache, so further writes to the original do not perturb a simulator
// already holding a clone.
func (s *Sort) Clone() *Sort {
	clone := &Sort{
		frag:     s.frag,
		accounts: make(map[common.Address]*Account, len(s.accounts)),
		code:     make(map[common.Hash][]byte, len(s.code)),
		storage:  make(map[storageKey]common.Hash, len(s.storage)),
		stateID:  s.stateID,
	}
	for k, v := range s.accounts {
		clone.accounts[k] = v
	}
	for k, v := range s.code {
		clone.code[k] = v
	}
	for k, v := range s.storage {
		clone.storage[k] = v
	}
	return clone
}

// FlatBundle returns every change this Sort has accumulated since it was
// opened, as a single StateBundle - what the sequencer folds into Frag via
// CommitFlatChanges when the frag seals.
func (s *Sort) FlatBundle() StateBundle {
	out := make(StateBundle, len(s.accounts))
	for addr, acc := range s.accounts {
		nonce, bal, codeHash := acc.Nonce, acc.Balance, acc.CodeHash
		w := &AccountWrite{Nonce: &nonce, Balance: bal, CodeHash: &codeHash}
		for sk, val := range s.storage {
			if sk.addr == addr {
				if w.Storage == nil {
					w.Storage = make(map[common.Hash]common.Hash)
				}
				w.Storage[sk.slot] = val
			}
		}
		if code, ok := s.code[codeHash]; ok {
			w.Code = code
		}
		out[addr] = w
	}
	return out
}
