package txn

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DepositTxType is the EIP-2718 type byte the OP stack reserves for deposit
// transactions. Vanilla go-ethereum's types.Transaction.UnmarshalBinary has
// no case for it, so deposit envelopes never go through txn.Decode.
const DepositTxType = 0x7E

// depositRLP is the wire tuple of an OP-stack deposit transaction, in field
// order: source_hash, from, to, mint, value, gas, is_system_tx, data.
type depositRLP struct {
	SourceHash common.Hash
	From       common.Address
	To         *common.Address `rlp:"nil"`
	Mint       *big.Int
	Value      *big.Int
	Gas        uint64
	IsSystemTx bool
	Data       []byte
}

// DecodeDeposit parses a forced-inclusion deposit envelope (the single
// DepositTxType byte followed by the RLP-encoded deposit tuple) into a
// DepositData plus the hash the envelope commits to. This is the forced-
// inclusion counterpart to Decode: Decode handles the four signed envelope
// kinds, DecodeDeposit handles the one unsigned kind payload attributes
// actually carry in practice.
func DecodeDeposit(raw []byte) (*DepositData, common.Hash, error) {
	if len(raw) < 1 || raw[0] != DepositTxType {
		return nil, common.Hash{}, fmt.Errorf("txn: not a deposit envelope")
	}
	var body depositRLP
	if err := rlp.DecodeBytes(raw[1:], &body); err != nil {
		return nil, common.Hash{}, fmt.Errorf("txn: decode deposit: %w", err)
	}
	return &DepositData{
		SourceHash: body.SourceHash,
		From:       body.From,
		To:         body.To,
		Mint:       body.Mint,
		Value:      body.Value,
		Gas:        body.Gas,
		IsSystemTx: body.IsSystemTx,
		Data:       body.Data,
	}, crypto.Keccak256Hash(raw), nil
}
