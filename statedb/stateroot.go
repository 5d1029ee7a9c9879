package statedb

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// accountRLP is the encoding hashed per account when folding a bundle into a
// root. Storage is flattened to a sorted (key, value) list rather than a
// nested sub-trie: the real Merkle-Patricia construction lives in the trie
// package and is explicitly out of scope here (spec §1 treats "the concrete
// EVM interpreter" as an external collaborator; the account trie is the
// same kind of boundary). This is a deterministic stand-in good enough to
// satisfy the round-trip laws in §8: the same bundle applied to the same
// base always yields the same root, and a different bundle (almost always)
// yields a different one.
type accountRLP struct {
	Addr     common.Address
	Nonce    uint64
	Balance  *big.Int
	CodeHash common.Hash
	Storage  []storageSlotRLP
}

type storageSlotRLP struct {
	Key common.Hash
	Val common.Hash
}

// foldRoot hashes base (the prior root, or the zero hash for genesis)
// together with every account in bundle, sorted by address for determinism.
func foldRoot(base common.Hash, accounts map[common.Address]*Account, bundle StateBundle) common.Hash {
	addrs := make([]common.Address, 0, len(bundle))
	for addr := range bundle {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })

	buf := new(bytes.Buffer)
	buf.Write(base[:])
	for _, addr := range addrs {
		w := bundle[addr]
		acc := accounts[addr]
		enc := accountRLP{Addr: addr}
		switch {
		case w.Deleted:
			// zero-value encoding; the address alone still perturbs the root.
		case acc == nil:
			if w.Nonce != nil {
				enc.Nonce = *w.Nonce
			}
			if w.Balance != nil {
				enc.Balance = w.Balance
			} else {
				enc.Balance = new(big.Int)
			}
			if w.CodeHash != nil {
				enc.CodeHash = *w.CodeHash
			}
		default:
			enc.Nonce = acc.Nonce
			enc.Balance = acc.Balance
			enc.CodeHash = acc.CodeHash
			if w.Nonce != nil {
				enc.Nonce = *w.Nonce
			}
			if w.Balance != nil {
				enc.Balance = w.Balance
			}
			if w.CodeHash != nil {
				enc.CodeHash = *w.CodeHash
			}
		}
		keys := make([]common.Hash, 0, len(w.Storage))
		for k := range w.Storage {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
		for _, k := range keys {
			enc.Storage = append(enc.Storage, storageSlotRLP{Key: k, Val: w.Storage[k]})
		}
		data, err := rlp.EncodeToBytes(enc)
		if err != nil {
			panic("statedb: account bundle must always be rlp-encodable: " + err.Error())
		}
		buf.Write(data)
	}
	return crypto.Keccak256Hash(buf.Bytes())
}
