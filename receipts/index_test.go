package receipts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/based-sequencer/txn"
)

func signedTx(t *testing.T, nonce uint64) *txn.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.Address{0xAA}
	signer := types.LatestSignerForChainID(big.NewInt(1))
	inner := types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: big.NewInt(10), Gas: 21000, To: &to, Value: big.NewInt(1)})
	signed, err := types.SignTx(inner, signer, key)
	require.NoError(t, err)
	tx, err := txn.NewFromSigned(signed, signer)
	require.NoError(t, err)
	return tx
}

func TestIndex_RecordFrag_AccumulatesCumulativeGas(t *testing.T) {
	idx := NewIndex()
	tx0 := signedTx(t, 0)
	tx1 := signedTx(t, 1)
	txs := []*txn.SimulatedTx{
		{Tx: tx0, Status: types.ReceiptStatusSuccessful, GasUsed: 21000},
		{Tx: tx1, Status: types.ReceiptStatusSuccessful, GasUsed: 30000},
	}

	idx.RecordFrag(5, txs, 10000)

	r0 := idx.Get(tx0.Hash())
	require.NotNil(t, r0)
	assert.Equal(t, uint64(31000), r0.CumulativeGasUsed)
	assert.Equal(t, uint(0), r0.TransactionIndex)
	assert.Equal(t, uint64(5), r0.BlockNumber)

	r1 := idx.Get(tx1.Hash())
	require.NotNil(t, r1)
	assert.Equal(t, uint64(61000), r1.CumulativeGasUsed)
	assert.Equal(t, uint(1), r1.TransactionIndex)
}

func TestIndex_SetBlockHash_OnlyTouchesMatchingBlock(t *testing.T) {
	idx := NewIndex()
	txA := signedTx(t, 0)
	txB := signedTx(t, 0)
	idx.RecordFrag(1, []*txn.SimulatedTx{{Tx: txA, Status: types.ReceiptStatusSuccessful, GasUsed: 21000}}, 0)
	idx.RecordFrag(2, []*txn.SimulatedTx{{Tx: txB, Status: types.ReceiptStatusSuccessful, GasUsed: 21000}}, 0)

	hash := common.Hash{0x01}
	idx.SetBlockHash(1, hash)

	assert.Equal(t, hash, idx.Get(txA.Hash()).BlockHash)
	assert.Equal(t, common.Hash{}, idx.Get(txB.Hash()).BlockHash)
}

func TestIndex_Get_UnknownHashReturnsNil(t *testing.T) {
	idx := NewIndex()
	assert.Nil(t, idx.Get(common.Hash{0xFF}))
}
