package statedb

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Frag wraps Base with a write-through cache of applied-but-unsealed frags
// (spec §4.1, "Frag"). It is shared read-mostly with the RPC façade: "latest
// balance" seen by eth_getBalance is always Frag, never Base directly.
//
// Frag.state_id changes only via commit_flat_changes (after sealing a
// frag) or reset (at a block boundary) - nothing else mutates it, which is
// the invariant Sort relies on to detect a stale simulation result.
type Frag struct {
	mu sync.RWMutex

	base *Base

	accounts map[common.Address]*Account
	code     map[common.Hash][]byte
	storage  map[storageKey]common.Hash

	stateID     uint64
	blockNumber uint64
}

func NewFrag(base *Base) *Frag {
	return &Frag{
		base:        base,
		accounts:    make(map[common.Address]*Account),
		code:        make(map[common.Hash][]byte),
		storage:     make(map[storageKey]common.Hash),
		blockNumber: base.HeadBlockNumber() + 1,
	}
}

func (f *Frag) BasicRef(addr common.Address) *Account {
	f.mu.RLock()
	acc, hit := f.accounts[addr]
	f.mu.RUnlock()
	if hit {
		return acc
	}
	return f.base.BasicRef(addr)
}

func (f *Frag) StorageRef(addr common.Address, key common.Hash) common.Hash {
	sk := storageKey{addr, key}
	f.mu.RLock()
	v, hit := f.storage[sk]
	f.mu.RUnlock()
	if hit {
		return v
	}
	return f.base.StorageRef(addr, key)
}

func (f *Frag) CodeByHashRef(hash common.Hash) []byte {
	f.mu.RLock()
	code, hit := f.code[hash]
	f.mu.RUnlock()
	if hit {
		return code
	}
	return f.base.CodeByHashRef(hash)
}

func (f *Frag) BlockHashRef(n uint64) common.Hash {
	return f.base.BlockHashRef(n)
}

func (f *Frag) GetNonce(addr common.Address) uint64 {
	acc := f.BasicRef(addr)
	if acc == nil {
		return 0
	}
	return acc.Nonce
}

func (f *Frag) GetBalance(addr common.Address) *big.Int {
	acc := f.BasicRef(addr)
	if acc == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(acc.Balance)
}

func (f *Frag) CalculateStateRoot(bundle StateBundle) (common.Hash, TrieUpdates) {
	f.mu.RLock()
	merged := f.mergeLocked(bundle)
	f.mu.RUnlock()
	return f.base.CalculateStateRoot(merged)
}

func (f *Frag) StateID() uint64 { return f.stateID }

func (f *Frag) HeadBlockNumber() uint64 { return f.blockNumber }

// mergeLocked overlays bundle on top of whatever Frag already holds for the
// same accounts, so CalculateStateRoot sees the full frag-to-date picture
// (base overlaid with every applied frag plus the new bundle) rather than
// just the latest increment. Caller must hold f.mu for reading.
func (f *Frag) mergeLocked(bundle StateBundle) StateBundle {
	out := make(StateBundle, len(f.accounts)+len(bundle))
	for addr, acc := range f.accounts {
		nonce, bal, codeHash := acc.Nonce, acc.Balance, acc.CodeHash
		out[addr] = &AccountWrite{Nonce: &nonce, Balance: bal, CodeHash: &codeHash}
	}
	for addr, w := range bundle {
		if existing, ok := out[addr]; ok && w != nil {
			merged := *existing
			if w.Nonce != nil {
				merged.Nonce = w.Nonce
			}
			if w.Balance != nil {
				merged.Balance = w.Balance
			}
			if w.CodeHash != nil {
				merged.CodeHash = w.CodeHash
			}
			if w.Storage != nil {
				merged.Storage = w.Storage
			}
			merged.Deleted = w.Deleted
			out[addr] = &merged
			continue
		}
		out[addr] = w
	}
	return out
}

// FlatBundle returns every change accumulated in Frag since the last Reset,
// across every frag sealed so far this block - the full picture
// CommitBlock needs, as opposed to Sort.FlatBundle's single-frag slice.
func (f *Frag) FlatBundle() StateBundle {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(StateBundle, len(f.accounts))
	for addr, acc := range f.accounts {
		nonce, bal, codeHash := acc.Nonce, acc.Balance, acc.CodeHash
		w := &AccountWrite{Nonce: &nonce, Balance: bal, CodeHash: &codeHash}
		for sk, val := range f.storage {
			if sk.addr == addr {
				if w.Storage == nil {
					w.Storage = make(map[common.Hash]common.Hash)
				}
				w.Storage[sk.slot] = val
			}
		}
		if code, ok := f.code[codeHash]; ok {
			w.Code = code
		}
		out[addr] = w
	}
	return out
}

// CommitFlatChanges applies a sealed frag's state delta to the cache and
// advances state_id. The name follows the design's "flat changes" term
// because bundle is already flattened (one entry per touched account, no
// per-tx replay needed).
func (f *Frag) CommitFlatChanges(bundle StateBundle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for addr, w := range bundle {
		if w.Deleted {
			delete(f.accounts, addr)
			continue
		}
		acc := f.accounts[addr]
		if acc != nil {
			cp := *acc
			acc = &cp
		} else if base := f.base.BasicRef(addr); base != nil {
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
		f.accounts[addr] = acc

		if w.Code != nil {
			f.code[acc.CodeHash] = w.Code
		}
		for slot, val := range w.Storage {
			f.storage[storageKey{addr, slot}] = val
		}
	}
	f.stateID++
}

// Reset clears the frag cache at a block boundary and bumps
// current_block_number, preparing Frag for the next block's frags.
func (f *Frag) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = make(map[common.Address]*Account)
	f.code = make(map[common.Hash][]byte)
	f.storage = make(map[storageKey]common.Hash)
	f.blockNumber = f.base.HeadBlockNumber() + 1
	f.stateID = 0
}

// Snapshot returns a point-in-time, independently-readable copy of the frag
// cache for handing to a simulator as a tagged version (spec: "handles are
// used for the snapshots passed to simulators"). The copy is shallow: it
// shares Base and copies only the frag-local maps, which is cheap relative
// to re-reading Base on every miss.
func (f *Frag) Snapshot() *Frag {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := &Frag{
		base:        f.base,
		accounts:    make(map[common.Address]*Account, len(f.accounts)),
		code:        make(map[common.Hash][]byte, len(f.code)),
		storage:     make(map[storageKey]common.Hash, len(f.storage)),
		stateID:     f.stateID,
		blockNumber: f.blockNumber,
	}
	for k, v := range f.accounts {
		s.accounts[k] = v
	}
	for k, v := range f.code {
		s.code[k] = v
	}
	for k, v := range f.storage {
		s.storage[k] = v
	}
	return s
}
