// Package txn holds the transaction envelope, its simulated-execution
// result, and the per-sender ordered lists the pool and sorter operate on
// (spec §3 DATA MODEL).
package txn

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Kind identifies which of the five envelope variants a Transaction wraps.
type Kind uint8

const (
	KindLegacy Kind = iota
	KindAccessList
	KindDynamicFee
	KindAuthList
	KindDeposit
)

func (k Kind) String() string {
	switch k {
	case KindLegacy:
		return "legacy"
	case KindAccessList:
		return "access-list"
	case KindDynamicFee:
		return "dynamic-fee"
	case KindAuthList:
		return "auth-list"
	case KindDeposit:
		return "deposit"
	default:
		return "unknown"
	}
}

// DepositData is the forced-inclusion / L1-info variant of Transaction. It
// is never resubmitted by an end user, carries no priority fee, and is
// never replaced once seen (spec §8, "Deposit tx" boundary behavior).
type DepositData struct {
	SourceHash   common.Hash
	From         common.Address
	To           *common.Address
	Mint         *big.Int
	Value        *big.Int
	Gas          uint64
	IsSystemTx   bool
	Data         []byte
	DepositNonce *uint64 // not set by this module; receipts take the deposit nonce from SimulatedTx.DepositNonce
}

// Transaction is an immutable envelope plus its recovered sender, shared by
// reference across the pool, simulators, and the sequencer.
type Transaction struct {
	kind    Kind
	inner   *types.Transaction // nil when kind == KindDeposit
	deposit *DepositData       // nil unless kind == KindDeposit
	sender  common.Address
	raw     []byte
	hash    common.Hash
}

var ErrUnrecoverableSender = errors.New("txn: could not recover sender")

// NewFromSigned wraps a standard-envelope *types.Transaction, recovering its
// sender with the supplied signer.
func NewFromSigned(tx *types.Transaction, signer types.Signer) (*Transaction, error) {
	sender, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecoverableSender, err)
	}
	var kind Kind
	switch tx.Type() {
	case types.LegacyTxType:
		kind = KindLegacy
	case types.AccessListTxType:
		kind = KindAccessList
	case types.DynamicFeeTxType:
		kind = KindDynamicFee
	case types.SetCodeTxType:
		kind = KindAuthList
	default:
		return nil, fmt.Errorf("txn: unsupported tx type %d", tx.Type())
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Transaction{kind: kind, inner: tx, sender: sender, raw: raw, hash: tx.Hash()}, nil
}

// NewDeposit wraps a forced-inclusion deposit/L1-info message. Deposits
// arrive only via payload attributes, never via RPC ingress. raw is kept
// around so deposits can go into a FragV0 broadcast the same way ordinary
// txs do, without the p2pmsg package needing to know about DepositData.
func NewDeposit(d *DepositData, hash common.Hash, raw []byte) *Transaction {
	return &Transaction{kind: KindDeposit, deposit: d, sender: d.From, hash: hash, raw: raw}
}

// Decode parses an opaque rlp/binary envelope the way the forced-inclusion
// path of the sequencer does (payload attributes carry raw bytes).
func Decode(raw []byte, signer types.Signer) (*Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("txn: decode: %w", err)
	}
	return NewFromSigned(tx, signer)
}

func (t *Transaction) Kind() Kind             { return t.kind }
func (t *Transaction) IsDeposit() bool        { return t.kind == KindDeposit }
func (t *Transaction) Sender() common.Address { return t.sender }
func (t *Transaction) Hash() common.Hash      { return t.hash }
func (t *Transaction) Raw() []byte            { return t.raw }
func (t *Transaction) Inner() *types.Transaction {
	return t.inner
}
func (t *Transaction) Deposit() *DepositData { return t.deposit }

// Nonce returns the tx's nonce. Deposits don't carry a nonce in the account
// sense; they're always applied regardless of the sender's state nonce.
func (t *Transaction) Nonce() uint64 {
	if t.kind == KindDeposit {
		return 0
	}
	return t.inner.Nonce()
}

func (t *Transaction) Gas() uint64 {
	if t.kind == KindDeposit {
		return t.deposit.Gas
	}
	return t.inner.Gas()
}

func (t *Transaction) To() *common.Address {
	if t.kind == KindDeposit {
		return t.deposit.To
	}
	return t.inner.To()
}

func (t *Transaction) Value() *big.Int {
	if t.kind == KindDeposit {
		return t.deposit.Value
	}
	return t.inner.Value()
}

func (t *Transaction) Data() []byte {
	if t.kind == KindDeposit {
		return t.deposit.Data
	}
	return t.inner.Data()
}

// GasFeeCap returns the max fee per gas a non-deposit tx is willing to pay;
// deposits never pay gas from the sender's balance.
func (t *Transaction) GasFeeCap() *uint256.Int {
	if t.kind == KindDeposit {
		return uint256.NewInt(0)
	}
	v, _ := uint256.FromBig(t.inner.GasFeeCap())
	return v
}

func (t *Transaction) GasTipCap() *uint256.Int {
	if t.kind == KindDeposit {
		return uint256.NewInt(0)
	}
	v, _ := uint256.FromBig(t.inner.GasTipCap())
	return v
}

// EffectiveGasPrice returns feeCap capped by baseFee+tip, i.e. what the
// sender actually pays per unit gas once baseFee is known. Deposits always
// return zero: they never compete on price.
func (t *Transaction) EffectiveGasPrice(baseFee *uint256.Int) *uint256.Int {
	if t.kind == KindDeposit {
		return uint256.NewInt(0)
	}
	tip := t.GasTipCap()
	feeCap := t.GasFeeCap()
	price := new(uint256.Int).Add(baseFee, tip)
	if price.Cmp(feeCap) > 0 {
		return feeCap
	}
	return price
}

// EffectivePriorityFee is EffectiveGasPrice - baseFee, the per-gas amount
// that ends up in the coinbase rather than being burned.
func (t *Transaction) EffectivePriorityFee(baseFee *uint256.Int) *uint256.Int {
	price := t.EffectiveGasPrice(baseFee)
	if price.Cmp(baseFee) <= 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(price, baseFee)
}

// ValidForBlock reports whether the tx is eligible to be dispatched for
// top-of-frag simulation right now: fee at least baseFee, not a deposit
// (those are forced-inclusion only, never pool-sourced), and within the
// pool's accepted size.
func (t *Transaction) ValidForBlock(baseFee *uint256.Int) bool {
	if t.kind == KindDeposit {
		return false
	}
	if t.GasFeeCap().Cmp(baseFee) < 0 {
		return false
	}
	const maxTxSize = 128 * 1024
	return len(t.raw) <= maxTxSize
}

func (t *Transaction) String() string {
	return fmt.Sprintf("tx{%s %s nonce=%d hash=%s}", t.kind, t.sender, t.Nonce(), t.hash)
}
