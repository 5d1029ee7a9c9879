package txn

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TxList is the nonce-ordered queue of pending transactions for a single
// sender (spec §3, "TxList"). Invariants: nonces strictly increasing, at
// most one tx per nonce (replace-by-effective-gas-price), and an empty list
// is never kept around by the owning pool.
type TxList struct {
	sender  common.Address
	byNonce map[uint64]*Transaction
	nonces  []uint64 // kept sorted ascending
}

// NewTxList seeds a list with its first transaction.
func NewTxList(tx *Transaction) *TxList {
	l := &TxList{sender: tx.Sender(), byNonce: map[uint64]*Transaction{tx.Nonce(): tx}, nonces: []uint64{tx.Nonce()}}
	return l
}

func (l *TxList) Sender() common.Address { return l.sender }
func (l *TxList) Len() int                { return len(l.nonces) }
func (l *TxList) Empty() bool             { return len(l.nonces) == 0 }

func (l *TxList) Get(nonce uint64) (*Transaction, bool) {
	tx, ok := l.byNonce[nonce]
	return tx, ok
}

// Head returns the transaction at the lowest pending nonce, or nil if empty.
func (l *TxList) Head() *Transaction {
	if len(l.nonces) == 0 {
		return nil
	}
	return l.byNonce[l.nonces[0]]
}

// GetEffectivePriceForNonce returns the effective gas price of whatever tx
// currently occupies nonce, or a zero price if the slot is empty - so a new
// arrival always outbids an empty slot.
func (l *TxList) GetEffectivePriceForNonce(nonce uint64, baseFee *uint256.Int) *uint256.Int {
	if tx, ok := l.byNonce[nonce]; ok {
		return tx.EffectiveGasPrice(baseFee)
	}
	return uint256.NewInt(0)
}

// Put inserts tx, replacing whatever previously held the same nonce. The
// caller (TxPool.HandleNewTx) is responsible for the replace-by-fee check;
// Put unconditionally overwrites once that decision has been made.
func (l *TxList) Put(tx *Transaction) {
	nonce := tx.Nonce()
	if _, exists := l.byNonce[nonce]; !exists {
		idx := sort.Search(len(l.nonces), func(i int) bool { return l.nonces[i] >= nonce })
		l.nonces = append(l.nonces, 0)
		copy(l.nonces[idx+1:], l.nonces[idx:])
		l.nonces[idx] = nonce
	}
	l.byNonce[nonce] = tx
}

// Forward drops every entry with nonce <= upTo (inclusive), the way mined
// txs are cleared from a sender's queue after a block lands. Returns true
// if the list is now empty and should be evicted from the pool.
func (l *TxList) Forward(upTo uint64) bool {
	cut := 0
	for cut < len(l.nonces) && l.nonces[cut] <= upTo {
		delete(l.byNonce, l.nonces[cut])
		cut++
	}
	l.nonces = l.nonces[cut:]
	return len(l.nonces) == 0
}

// Ready returns the head transaction if it sits exactly at stateNonce and
// is currently valid for inclusion at baseFee - i.e. it is the sender's
// next mineable transaction right now.
func (l *TxList) Ready(stateNonce uint64, baseFee *uint256.Int) *Transaction {
	head := l.Head()
	if head == nil || head.Nonce() != stateNonce {
		return nil
	}
	if !head.ValidForBlock(baseFee) {
		return nil
	}
	return head
}
