package statedb

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBase() *Base {
	return NewBase(DefaultBaseConfig())
}

func TestBase_MissReturnsNil(t *testing.T) {
	base := newTestBase()
	addr := common.HexToAddress("0x1")
	assert.Nil(t, base.BasicRef(addr))
	assert.Equal(t, uint64(0), base.GetNonce(addr))
	assert.Equal(t, big.NewInt(0), base.GetBalance(addr))
}

func TestBase_CommitBlockAdvancesHead(t *testing.T) {
	base := newTestBase()
	addr := common.HexToAddress("0x1")
	nonce := uint64(1)
	bundle := StateBundle{addr: {Nonce: &nonce, Balance: big.NewInt(100)}}

	header := &types.Header{Number: big.NewInt(1)}
	root := base.CommitBlock(header, bundle, TrieUpdates{})

	assert.NotEqual(t, common.Hash{}, root)
	assert.Equal(t, uint64(1), base.HeadBlockNumber())

	acc := base.BasicRef(addr)
	require.NotNil(t, acc)
	assert.Equal(t, uint64(1), acc.Nonce)
	assert.Equal(t, big.NewInt(100), acc.Balance)
}

func TestBase_CommitBlockDeterministicRoot(t *testing.T) {
	addr := common.HexToAddress("0xabc")
	nonce := uint64(5)
	bundle := StateBundle{addr: {Nonce: &nonce, Balance: big.NewInt(7)}}
	header := &types.Header{Number: big.NewInt(1)}

	b1 := newTestBase()
	root1 := b1.CommitBlock(header, bundle, TrieUpdates{})

	b2 := newTestBase()
	root2 := b2.CommitBlock(header, bundle, TrieUpdates{})

	assert.Equal(t, root1, root2)
}

func TestFrag_WritesShadowBase(t *testing.T) {
	base := newTestBase()
	addr := common.HexToAddress("0x1")
	nonce := uint64(1)
	base.CommitBlock(&types.Header{Number: big.NewInt(1)}, StateBundle{addr: {Nonce: &nonce, Balance: big.NewInt(5)}}, TrieUpdates{})

	frag := NewFrag(base)
	assert.Equal(t, uint64(1), frag.GetNonce(addr))

	newNonce := uint64(2)
	frag.CommitFlatChanges(StateBundle{addr: {Nonce: &newNonce}})

	assert.Equal(t, uint64(2), frag.GetNonce(addr))
	assert.Equal(t, uint64(1), base.GetNonce(addr), "base must stay untouched by frag writes")
	assert.Equal(t, uint64(1), frag.StateID())
}

func TestFrag_ResetClearsCacheAndBumpsBlock(t *testing.T) {
	base := newTestBase()
	frag := NewFrag(base)
	addr := common.HexToAddress("0x1")
	nonce := uint64(9)
	frag.CommitFlatChanges(StateBundle{addr: {Nonce: &nonce}})
	require.Equal(t, uint64(9), frag.GetNonce(addr))

	frag.Reset()
	assert.Equal(t, uint64(0), frag.GetNonce(addr))
	assert.Equal(t, uint64(0), frag.StateID())
	assert.Equal(t, base.HeadBlockNumber()+1, frag.HeadBlockNumber())
}

func TestSort_CommitAdvancesStateIDAndIsolatesClone(t *testing.T) {
	base := newTestBase()
	frag := NewFrag(base)
	sort := NewSort(frag)

	snap := sort.Clone()
	assert.Equal(t, sort.StateID(), snap.StateID())

	addr := common.HexToAddress("0x1")
	nonce := uint64(3)
	sort.Commit(StateBundle{addr: {Nonce: &nonce, Balance: big.NewInt(1)}})

	assert.Equal(t, uint64(1), sort.StateID())
	assert.Equal(t, uint64(3), sort.GetNonce(addr))
	assert.Equal(t, uint64(0), snap.GetNonce(addr), "a clone taken before commit must not observe later writes")
}

func TestSort_FlatBundleRoundTripsIntoFrag(t *testing.T) {
	base := newTestBase()
	frag := NewFrag(base)
	sort := NewSort(frag)

	addr := common.HexToAddress("0x1")
	nonce := uint64(4)
	sort.Commit(StateBundle{addr: {Nonce: &nonce, Balance: big.NewInt(42)}})

	frag.CommitFlatChanges(sort.FlatBundle())
	assert.Equal(t, uint64(4), frag.GetNonce(addr))
	assert.Equal(t, big.NewInt(42), frag.GetBalance(addr))
}

func TestFrag_FlatBundleAccumulatesAcrossMultipleCommits(t *testing.T) {
	base := newTestBase()
	frag := NewFrag(base)

	addr1 := common.HexToAddress("0x1")
	addr2 := common.HexToAddress("0x2")

	nonce1 := uint64(1)
	frag.CommitFlatChanges(StateBundle{addr1: {Nonce: &nonce1, Balance: big.NewInt(10)}})

	nonce2 := uint64(2)
	frag.CommitFlatChanges(StateBundle{addr2: {Nonce: &nonce2, Balance: big.NewInt(20)}})

	bundle := frag.FlatBundle()
	require.Contains(t, bundle, addr1, "an earlier commit's account must still be present in the accumulated bundle")
	require.Contains(t, bundle, addr2)
	assert.Equal(t, uint64(1), *bundle[addr1].Nonce)
	assert.Equal(t, uint64(2), *bundle[addr2].Nonce)
}
