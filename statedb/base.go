package statedb

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// BaseConfig sizes the read caches Base keeps in front of its persisted
// store. Named to match the --cache.accounts / --cache.storage flags wired
// in cmd/basedseq.
type BaseConfig struct {
	AccountCacheSize int
	StorageCacheSize int
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{AccountCacheSize: 4096, StorageCacheSize: 16384}
}

type storageKey struct {
	addr common.Address
	slot common.Hash
}

// Base is the persisted account/storage/code/header store (spec §4.1,
// "Base"). It never exposes uncommitted data: every read either comes from
// committed block state or is a miss. All other layers delegate to it.
//
// The underlying store here is an in-memory map rather than a real
// key-value/trie-backed database: wiring go-ethereum's triedb/pathdb
// correctly from memory, with no compiler to catch a mismatched method
// set, was judged too risky (see DESIGN.md). Base's public shape —
// point reads, head_block_number, block_hash(n), calculate_state_root,
// commit of a fully executed block — is exactly the capability set
// consumers are written against, so swapping in a disk-backed store later
// does not touch any other package.
type Base struct {
	mu sync.RWMutex

	accounts map[common.Address]*Account
	code     map[common.Hash][]byte
	storage  map[storageKey]common.Hash

	headers      map[uint64]*types.Header
	headerByHash map[common.Hash]*types.Header
	hashByNum    map[uint64]common.Hash
	headNumber   uint64
	currentRoot  common.Hash

	accountCache *lru.Cache[common.Address, *Account]
	storageCache *lru.Cache[storageKey, common.Hash]
}

// NewBase creates an empty Base seeded at genesis (block 0, zero root).
// Callers that resume from a persisted chain commit the genesis block
// immediately after construction via CommitBlock.
func NewBase(cfg BaseConfig) *Base {
	accountCache, err := lru.New[common.Address, *Account](cfg.AccountCacheSize)
	if err != nil {
		panic("statedb: invalid account cache size: " + err.Error())
	}
	storageCache, err := lru.New[storageKey, common.Hash](cfg.StorageCacheSize)
	if err != nil {
		panic("statedb: invalid storage cache size: " + err.Error())
	}
	return &Base{
		accounts:     make(map[common.Address]*Account),
		code:         make(map[common.Hash][]byte),
		storage:      make(map[storageKey]common.Hash),
		headers:      make(map[uint64]*types.Header),
		headerByHash: make(map[common.Hash]*types.Header),
		hashByNum:    make(map[uint64]common.Hash),
		accountCache: accountCache,
		storageCache: storageCache,
	}
}

func (b *Base) BasicRef(addr common.Address) *Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if acc, ok := b.accountCache.Get(addr); ok {
		return acc
	}
	acc := b.accounts[addr]
	b.accountCache.Add(addr, acc)
	return acc
}

func (b *Base) StorageRef(addr common.Address, key common.Hash) common.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sk := storageKey{addr, key}
	if v, ok := b.storageCache.Get(sk); ok {
		return v
	}
	v := b.storage[sk]
	b.storageCache.Add(sk, v)
	return v
}

func (b *Base) CodeByHashRef(hash common.Hash) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.code[hash]
}

func (b *Base) BlockHashRef(n uint64) common.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hashByNum[n]
}

func (b *Base) GetNonce(addr common.Address) uint64 {
	acc := b.BasicRef(addr)
	if acc == nil {
		return 0
	}
	return acc.Nonce
}

func (b *Base) GetBalance(addr common.Address) *big.Int {
	acc := b.BasicRef(addr)
	if acc == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(acc.Balance)
}

func (b *Base) CalculateStateRoot(bundle StateBundle) (common.Hash, TrieUpdates) {
	b.mu.RLock()
	root := foldRoot(b.currentRoot, b.accounts, bundle)
	b.mu.RUnlock()
	return root, TrieUpdates{bundle: bundle, root: root}
}

func (b *Base) StateID() uint64 { return b.headNumber }

func (b *Base) HeadBlockNumber() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.headNumber
}

// Header returns the canonical header at block n, or nil if unknown.
func (b *Base) Header(n uint64) *types.Header {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.headers[n]
}

// HeaderByHash returns the header whose hash is h, or nil if unknown. Used
// by enginerpc to resolve a forkchoice state's head_block_hash into the
// parent header the sequencer builds on top of.
func (b *Base) HeaderByHash(h common.Hash) *types.Header {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.headerByHash[h]
}

// CommitBlock folds a fully executed block's account bundle into Base and
// records its header as canonical. updates, if non-zero, is reused as the
// block's state root instead of recomputing it (the common case: the
// caller already ran CalculateStateRoot to compare against the header).
func (b *Base) CommitBlock(header *types.Header, bundle StateBundle, updates TrieUpdates) common.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	root := updates.root
	if root == (common.Hash{}) {
		root = foldRoot(b.currentRoot, b.accounts, bundle)
	}

	for addr, w := range bundle {
		if w.Deleted {
			delete(b.accounts, addr)
			b.accountCache.Remove(addr)
			continue
		}
		acc := b.accounts[addr]
		if acc == nil {
			acc = &Account{Balance: new(big.Int)}
		} else {
			cp := *acc
			acc = &cp
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
		b.accounts[addr] = acc
		b.accountCache.Remove(addr)

		if w.Code != nil {
			b.code[acc.CodeHash] = w.Code
		}
		for slot, val := range w.Storage {
			sk := storageKey{addr, slot}
			b.storage[sk] = val
			b.storageCache.Remove(sk)
		}
	}

	b.currentRoot = root
	b.headNumber = header.Number.Uint64()
	b.headers[b.headNumber] = header
	b.headerByHash[header.Hash()] = header
	b.hashByNum[b.headNumber] = header.Hash()
	return root
}
