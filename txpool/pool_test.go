package txpool

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
)

var testSigner = types.HomesteadSigner{}

func signedTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, gasPrice int64) *txn.Transaction {
	t.Helper()
	inner := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(gasPrice),
		Gas:      21000,
		To:       &common.Address{0xAA},
		Value:    big.NewInt(1),
	})
	signed, err := types.SignTx(inner, testSigner, key)
	require.NoError(t, err)
	tx, err := txn.NewFromSigned(signed, testSigner)
	require.NoError(t, err)
	return tx
}

type recordingDispatcher struct {
	dispatched []*txn.Transaction
}

func (d *recordingDispatcher) DispatchTOF(tx *txn.Transaction, frag *statedb.Frag) {
	d.dispatched = append(d.dispatched, tx)
}

func newTestFrag() *statedb.Frag {
	return statedb.NewFrag(statedb.NewBase(statedb.DefaultBaseConfig()))
}

func TestTxPool_HandleNewTx_DispatchesReadyHead(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pool := New()
	frag := newTestFrag()
	dispatcher := &recordingDispatcher{}
	baseFee := uint256.NewInt(1)

	tx := signedTx(t, key, 0, 10)
	pool.HandleNewTx(tx, frag, baseFee, dispatcher)

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, tx.Hash(), dispatcher.dispatched[0].Hash())
	assert.Equal(t, 1, pool.Active().Len())
}

func TestTxPool_HandleNewTx_DropsStaleNonce(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pool := New()
	frag := newTestFrag()
	nonce := uint64(5)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	frag.CommitFlatChanges(statedb.StateBundle{sender: {Nonce: &nonce}})

	dispatcher := &recordingDispatcher{}
	tx := signedTx(t, key, 4, 10)
	pool.HandleNewTx(tx, frag, uint256.NewInt(1), dispatcher)

	assert.Empty(t, dispatcher.dispatched)
	assert.Equal(t, 0, pool.Active().Len())
}

func TestTxPool_HandleNewTx_RejectsUnderbidReplacement(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pool := New()
	frag := newTestFrag()
	dispatcher := &recordingDispatcher{}
	baseFee := uint256.NewInt(1)

	pool.HandleNewTx(signedTx(t, key, 0, 10), frag, baseFee, dispatcher)
	pool.HandleNewTx(signedTx(t, key, 0, 5), frag, baseFee, dispatcher)

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, uint64(10), dispatcher.dispatched[0].GasFeeCap().Uint64())
}

func TestTxPool_HandleNewBlock_ForwardsAndRedispatches(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pool := New()
	frag := newTestFrag()
	dispatcher := &recordingDispatcher{}
	baseFee := uint256.NewInt(1)

	tx0 := signedTx(t, key, 0, 10)
	tx1 := signedTx(t, key, 1, 10)
	pool.HandleNewTx(tx0, frag, baseFee, dispatcher)
	pool.HandleNewTx(tx1, frag, baseFee, dispatcher)

	nonce := uint64(1)
	frag.CommitFlatChanges(statedb.StateBundle{tx0.Sender(): {Nonce: &nonce}})

	dispatcher2 := &recordingDispatcher{}
	pool.HandleNewBlock([]*txn.Transaction{tx0}, baseFee, frag, dispatcher2)

	require.Len(t, dispatcher2.dispatched, 1)
	assert.Equal(t, tx1.Hash(), dispatcher2.dispatched[0].Hash())
	assert.Equal(t, 1, pool.Active().Len())
}

func TestTxPool_HandleSimulated_InstallsCurrent(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pool := New()
	frag := newTestFrag()
	dispatcher := &recordingDispatcher{}
	baseFee := uint256.NewInt(1)

	tx := signedTx(t, key, 0, 10)
	pool.HandleNewTx(tx, frag, baseFee, dispatcher)

	sim := &txn.SimulatedTx{Tx: tx, Status: types.ReceiptStatusSuccessful, Payment: uint256.NewInt(42)}
	pool.HandleSimulated(sim)

	entry := pool.Active().Get(tx.Sender())
	require.NotNil(t, entry)
	assert.Equal(t, uint64(42), entry.Weight().Value.Uint64())
}

func TestActive_PopHighestBreaksTiesByInsertion(t *testing.T) {
	active := NewActive()
	keyA, _ := crypto.GenerateKey()
	keyB, _ := crypto.GenerateKey()
	txA := signedTx(t, keyA, 0, 10)
	txB := signedTx(t, keyB, 0, 10)

	listA := txn.NewSimulatedTxList(txn.NewTxList(txA))
	listA.Put(&txn.SimulatedTx{Tx: txA, Payment: uint256.NewInt(5)})
	listB := txn.NewSimulatedTxList(txn.NewTxList(txB))
	listB.Put(&txn.SimulatedTx{Tx: txB, Payment: uint256.NewInt(5)})

	active.Put(listA)
	active.Put(listB)

	best, ok := active.PopHighest()
	require.True(t, ok)
	assert.Equal(t, txA.Sender(), best.Sender())
	assert.Equal(t, 1, active.Len())
}
