// Package statedb implements the three stacked account/storage/code views
// described by the design: Base (persisted), Frag (applied-but-unsealed
// frags on top of Base), and Sort (one speculative in-progress frag on top
// of Frag). Every upper layer caches writes while delegating reads to the
// layer below (spec §4.1 "Layered Database").
package statedb

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is the minimal account shape the layered views read and write.
// A nil entry (as opposed to a zero-value Account) means "account not
// touched by this layer" and triggers delegation to the layer below.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	CodeHash common.Hash
}

// View is the capability set every component is written against (spec §9,
// "Polymorphic DB"): basic_ref, storage_ref, code_by_hash_ref,
// block_hash_ref, get_nonce, get_balance, calculate_state_root, state_id,
// head_block_number. It is the single abstraction boundary shared by Base,
// Frag and Sort; none of them need a common supertype beyond this.
type View interface {
	// BasicRef returns the account at addr, or nil if it doesn't exist.
	BasicRef(addr common.Address) *Account
	// StorageRef returns the value stored at (addr, key), zero if unset.
	StorageRef(addr common.Address, key common.Hash) common.Hash
	// CodeByHashRef returns the contract code for a code hash, or nil.
	CodeByHashRef(hash common.Hash) []byte
	// BlockHashRef returns the canonical hash of block number n, as seen
	// from this view, or the zero hash if n is out of range.
	BlockHashRef(n uint64) common.Hash

	GetNonce(addr common.Address) uint64
	GetBalance(addr common.Address) *big.Int

	// CalculateStateRoot computes the root that would result from applying
	// bundle on top of this view, without mutating it. trieUpdates is
	// opaque to callers; it exists so the Base layer can commit exactly
	// the updates it already hashed rather than recomputing them.
	CalculateStateRoot(bundle StateBundle) (root common.Hash, trieUpdates TrieUpdates)

	StateID() uint64
	HeadBlockNumber() uint64
}

// StateBundle is a full or partial set of per-account writes, the
// granularity calculate_state_root and commit operate on across every
// layer. Keys are iterated in sorted order wherever hashing requires
// determinism.
type StateBundle map[common.Address]*AccountWrite

// AccountWrite is the post-state of one touched account. Nil fields mean
// "unchanged from whatever this account previously held in this view".
type AccountWrite struct {
	Nonce    *uint64
	Balance  *big.Int
	CodeHash *common.Hash
	Code     []byte
	Storage  map[common.Hash]common.Hash
	Deleted  bool
}

// TrieUpdates is the opaque result of Base.CalculateStateRoot, handed back
// unchanged to Base.CommitBlock so the root doesn't need recomputing. Frag
// and Sort return Base's value from their own CalculateStateRoot; neither of
// their commit methods takes one.
type TrieUpdates struct {
	bundle StateBundle
	root   common.Hash
}
