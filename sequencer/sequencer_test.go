package sequencer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/based-sequencer/p2pmsg"
	"github.com/NethermindEth/based-sequencer/simulator"
	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
	"github.com/NethermindEth/based-sequencer/txpool"
)

// depositEnvelope builds a raw OP-stack deposit tx envelope the same way
// txn.DecodeDeposit expects to parse it: a DepositTxType byte followed by
// the RLP-encoded (source_hash, from, to, mint, value, gas, is_system_tx,
// data) tuple. Field order (not name) is what the wire format depends on.
func depositEnvelope(t *testing.T, from common.Address) []byte {
	t.Helper()
	body := struct {
		SourceHash common.Hash
		From       common.Address
		To         *common.Address `rlp:"nil"`
		Mint       *big.Int
		Value      *big.Int
		Gas        uint64
		IsSystemTx bool
		Data       []byte
	}{
		SourceHash: common.HexToHash("0x01"),
		From:       from,
		Mint:       big.NewInt(0),
		Value:      big.NewInt(0),
		Gas:        50_000,
	}
	payload, err := rlp.EncodeToBytes(body)
	require.NoError(t, err)
	return append([]byte{txn.DepositTxType}, payload...)
}

// fixedRewardEvaluator charges a fixed 21000 gas per tx and reports a fixed
// coinbase-after balance, enough to exercise sorting/sealing without a real
// EVM (mirrors simulator package's own fakeEvaluator).
type fixedRewardEvaluator struct {
	env simulator.BlockEnv
}

func (e *fixedRewardEvaluator) SetBlockEnv(env simulator.BlockEnv) { e.env = env }

func (e *fixedRewardEvaluator) Execute(view statedb.View, tx *txn.Transaction) (simulator.ExecResult, error) {
	return simulator.ExecResult{
		Status:        types.ReceiptStatusSuccessful,
		GasUsed:       21000,
		CoinbaseAfter: big.NewInt(21000),
		Delta:         statedb.StateBundle{},
	}, nil
}

type failingEvaluator struct{}

func (failingEvaluator) SetBlockEnv(simulator.BlockEnv) {}

func (failingEvaluator) Execute(statedb.View, *txn.Transaction) (simulator.ExecResult, error) {
	return simulator.ExecResult{}, errForcedInclusion{}
}

type errForcedInclusion struct{}

func (errForcedInclusion) Error() string { return "forced inclusion evaluator failure" }

type recordingBroadcaster struct {
	frags []p2pmsg.FragV0
	seals []p2pmsg.SealV0
}

func (b *recordingBroadcaster) BroadcastFrag(f p2pmsg.FragV0) { b.frags = append(b.frags, f) }
func (b *recordingBroadcaster) BroadcastSeal(s p2pmsg.SealV0) { b.seals = append(b.seals, s) }

func newTestSequencer(t *testing.T) (*Sequencer, *Context, *recordingBroadcaster, *simulator.Pool) {
	t.Helper()
	base := statedb.NewBase(statedb.DefaultBaseConfig())
	frag := statedb.NewFrag(base)
	pool := txpool.New()
	simPool := simulator.NewPool(context.Background(), 1, func() simulator.Evaluator {
		return &fixedRewardEvaluator{}
	})
	t.Cleanup(func() { simPool.Close() })

	ctx := &Context{
		Config: Config{
			FragDuration: 20 * time.Millisecond,
			SimsPerLoop:  4,
			MinLoopSleep: time.Millisecond,
			ChainID:      1,
		},
		Pool:            pool,
		Base:            base,
		Frag:            frag,
		Simulators:      simPool,
		ForcedEvaluator: &fixedRewardEvaluator{},
	}
	out := &recordingBroadcaster{}
	return New(ctx, out), ctx, out, simPool
}

func genesisHeader() *types.Header {
	return &types.Header{
		Number:   big.NewInt(0),
		GasLimit: 30_000_000,
		BaseFee:  big.NewInt(1),
	}
}

func signTestTx(t *testing.T, to common.Address) (*types.Transaction, *txn.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)

	signer := types.LatestSignerForChainID(big.NewInt(1))
	inner := types.NewTx(&types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(10), Gas: 21000, To: &to, Value: big.NewInt(1)})
	signed, err := types.SignTx(inner, signer, key)
	require.NoError(t, err)
	tx, err := txn.NewFromSigned(signed, signer)
	require.NoError(t, err)
	return signed, tx, sender
}

func TestSequencer_HandleForkchoiceUpdated_RejectsWhileSyncing(t *testing.T) {
	seq, _, _, _ := newTestSequencer(t)
	seq.state = Syncing(100)

	_, err := seq.HandleForkchoiceUpdated(genesisHeader(), &PayloadAttributes{})
	require.Error(t, err)
}

func TestSequencer_FullBlockLifecycle(t *testing.T) {
	seq, ctx, out, simPool := newTestSequencer(t)

	attrs := &PayloadAttributes{
		PayloadAttributes: engine.PayloadAttributes{
			Timestamp:             1000,
			SuggestedFeeRecipient: common.Address{0x01},
		},
	}
	_, err := seq.HandleForkchoiceUpdated(genesisHeader(), attrs)
	require.NoError(t, err)
	require.Equal(t, PhaseSorting, seq.State().Phase)

	_, tx, sender := signTestTx(t, common.Address{0xAA})

	ctx.Pool.HandleNewTx(tx, ctx.Frag, ctx.BaseFee, ctx.Simulators)
	require.Equal(t, 1, ctx.Pool.Active().Len())

	seq.Tick() // nothing to dispatch: the snapshot predates tx, whose TOF sim HandleNewTx already sent
	result := <-simPool.Results()
	require.NotNil(t, result.Simulated)
	seq.HandleSimResult(sender, result.Simulated, nil)

	seq.Tick() // applies the pending result, dispatches any further sims
	require.Len(t, seq.State().Sorting.Txs, 1)

	seq.Tick() // TOF snapshot now dry, seals the frag
	require.Len(t, out.frags, 1)
	assert.False(t, out.frags[0].IsLast)

	header, seal, err := seq.HandleGetPayload()
	require.NoError(t, err)
	require.NotNil(t, header)
	require.Len(t, out.seals, 1)
	assert.Equal(t, seal.BlockHash, header.Hash())
	assert.Equal(t, uint64(21000), seal.GasUsed)
	assert.Equal(t, PhaseWaitingForPayloadAttributes, seq.State().Phase)
}

func TestSequencer_ForcedInclusionAppliedBeforePoolTxs(t *testing.T) {
	seq, _, _, _ := newTestSequencer(t)

	signed, _, _ := signTestTx(t, common.Address{0xBB})
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)

	attrs := &PayloadAttributes{
		PayloadAttributes: engine.PayloadAttributes{
			Timestamp:             2000,
			SuggestedFeeRecipient: common.Address{0x02},
		},
		Transactions: [][]byte{raw},
	}

	_, err = seq.HandleForkchoiceUpdated(genesisHeader(), attrs)
	require.NoError(t, err)

	sorting := seq.State().Sorting
	require.Len(t, sorting.Txs, 1)
	assert.Equal(t, signed.Hash(), sorting.Txs[0].Tx.Hash())
	assert.Equal(t, uint64(21000), sorting.Txs[0].GasUsed)
	assert.Equal(t, uint64(0), sorting.Txs[0].Payment.Uint64())
}

func TestSequencer_ForcedInclusionFailureAbortsEnterSorting(t *testing.T) {
	seq, ctx, _, _ := newTestSequencer(t)
	ctx.ForcedEvaluator = failingEvaluator{}

	signed, _, _ := signTestTx(t, common.Address{0xCC})
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)

	attrs := &PayloadAttributes{
		PayloadAttributes: engine.PayloadAttributes{Timestamp: 2000},
		Transactions:      [][]byte{raw},
	}
	_, err = seq.HandleForkchoiceUpdated(genesisHeader(), attrs)
	require.Error(t, err)
}

// nonceBumpEvaluator writes a real per-sender nonce delta (fixedRewardEvaluator's
// Delta is always empty), so a test can tell whether an earlier frag's state
// survived into the committed block or was dropped.
type nonceBumpEvaluator struct {
	env simulator.BlockEnv
}

func (e *nonceBumpEvaluator) SetBlockEnv(env simulator.BlockEnv) { e.env = env }

func (e *nonceBumpEvaluator) Execute(view statedb.View, tx *txn.Transaction) (simulator.ExecResult, error) {
	nonce := uint64(1)
	return simulator.ExecResult{
		Status:        types.ReceiptStatusSuccessful,
		GasUsed:       21000,
		CoinbaseAfter: big.NewInt(21000),
		Delta: statedb.StateBundle{
			tx.Sender(): {Nonce: &nonce, Balance: big.NewInt(0)},
		},
	}, nil
}

func TestSequencer_HandleGetPayload_CommitsEveryFragsState(t *testing.T) {
	base := statedb.NewBase(statedb.DefaultBaseConfig())
	frag := statedb.NewFrag(base)
	pool := txpool.New()
	simPool := simulator.NewPool(context.Background(), 1, func() simulator.Evaluator {
		return &nonceBumpEvaluator{}
	})
	t.Cleanup(func() { simPool.Close() })

	ctx := &Context{
		Config: Config{
			FragDuration: 20 * time.Millisecond,
			SimsPerLoop:  4,
			MinLoopSleep: time.Millisecond,
			ChainID:      1,
		},
		Pool:            pool,
		Base:            base,
		Frag:            frag,
		Simulators:      simPool,
		ForcedEvaluator: &nonceBumpEvaluator{},
	}
	seq := New(ctx, &recordingBroadcaster{})

	attrs := &PayloadAttributes{
		PayloadAttributes: engine.PayloadAttributes{
			Timestamp:             1000,
			SuggestedFeeRecipient: common.Address{0x01},
		},
	}
	_, err := seq.HandleForkchoiceUpdated(genesisHeader(), attrs)
	require.NoError(t, err)

	_, tx1, sender1 := signTestTx(t, common.Address{0xAA})
	ctx.Pool.HandleNewTx(tx1, ctx.Frag, ctx.BaseFee, ctx.Simulators)
	seq.Tick()
	result := <-simPool.Results()
	seq.HandleSimResult(sender1, result.Simulated, nil)
	seq.Tick() // applies tx1
	seq.Tick() // TOF dry, seals first frag (not last)
	require.Len(t, seq.State().Sorting.Txs, 0)

	_, tx2, sender2 := signTestTx(t, common.Address{0xBB})
	ctx.Pool.HandleNewTx(tx2, ctx.Frag, ctx.BaseFee, ctx.Simulators)
	seq.Tick()
	result = <-simPool.Results()
	seq.HandleSimResult(sender2, result.Simulated, nil)
	seq.Tick() // applies tx2

	header, _, err := seq.HandleGetPayload()
	require.NoError(t, err)
	require.NotNil(t, header)

	assert.Equal(t, uint64(1), base.BasicRef(sender1).Nonce, "first frag's delta must survive into the committed block")
	assert.Equal(t, uint64(1), base.BasicRef(sender2).Nonce)
}

func TestSequencer_ForcedInclusionDepositAppliedWithDepositNonce(t *testing.T) {
	seq, ctx, _, _ := newTestSequencer(t)
	regolithTime := uint64(0)
	ctx.Config.RegolithTime = &regolithTime

	from := common.Address{0xEE}
	raw := depositEnvelope(t, from)

	attrs := &PayloadAttributes{
		PayloadAttributes: engine.PayloadAttributes{Timestamp: 2000},
		Transactions:      [][]byte{raw},
	}
	_, err := seq.HandleForkchoiceUpdated(genesisHeader(), attrs)
	require.NoError(t, err)

	sorting := seq.State().Sorting
	require.Len(t, sorting.Txs, 1)
	applied := sorting.Txs[0]
	assert.True(t, applied.Tx.IsDeposit())
	assert.Equal(t, from, applied.Tx.Sender())
	require.NotNil(t, applied.DepositNonce, "post-regolith deposit receipts must carry a deposit nonce")
	assert.Equal(t, uint64(0), *applied.DepositNonce)
}

func TestSequencer_HandleSimResult_RedispatchesStaleResult(t *testing.T) {
	seq, ctx, _, simPool := newTestSequencer(t)

	attrs := &PayloadAttributes{PayloadAttributes: engine.PayloadAttributes{Timestamp: 500}}
	_, err := seq.HandleForkchoiceUpdated(genesisHeader(), attrs)
	require.NoError(t, err)

	_, tx, sender := signTestTx(t, common.Address{0xDD})
	ctx.Pool.HandleNewTx(tx, ctx.Frag, ctx.BaseFee, ctx.Simulators)
	<-simPool.Results() // drain HandleNewTx's own TOF dispatch

	stale := &txn.SimulatedTx{
		Tx:        tx,
		GasUsed:   21000,
		Payment:   uint256.NewInt(10),
		VersionID: seq.State().Sorting.Sort.StateID() + 1000,
	}
	seq.HandleSimResult(sender, stale, nil)

	redispatched := <-simPool.Results()
	require.NotNil(t, redispatched.Simulated)
	assert.Equal(t, tx.Hash(), redispatched.Simulated.Tx.Hash())
	assert.Empty(t, seq.State().Sorting.Txs)
}
