package enginerpc

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/based-sequencer/p2pmsg"
	"github.com/NethermindEth/based-sequencer/receipts"
	"github.com/NethermindEth/based-sequencer/sequencer"
	"github.com/NethermindEth/based-sequencer/simulator"
	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
	"github.com/NethermindEth/based-sequencer/txpool"
)

type fixedRewardEvaluator struct{ env simulator.BlockEnv }

func (e *fixedRewardEvaluator) SetBlockEnv(env simulator.BlockEnv) { e.env = env }

func (e *fixedRewardEvaluator) Execute(view statedb.View, tx *txn.Transaction) (simulator.ExecResult, error) {
	return simulator.ExecResult{
		Status:        types.ReceiptStatusSuccessful,
		GasUsed:       21000,
		CoinbaseAfter: big.NewInt(21000),
		Delta:         statedb.StateBundle{},
	}, nil
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastFrag(p2pmsg.FragV0) {}
func (noopBroadcaster) BroadcastSeal(p2pmsg.SealV0) {}

func newTestEngineAPI(t *testing.T) (*EngineAPI, *sequencer.Sequencer, *statedb.Base) {
	t.Helper()
	base := statedb.NewBase(statedb.DefaultBaseConfig())
	genesis := &types.Header{Number: big.NewInt(0), GasLimit: 30_000_000, BaseFee: big.NewInt(1)}
	base.CommitBlock(genesis, statedb.StateBundle{}, statedb.TrieUpdates{})

	frag := statedb.NewFrag(base)
	pool := txpool.New()
	simPool := simulator.NewPool(context.Background(), 1, func() simulator.Evaluator {
		return &fixedRewardEvaluator{}
	})
	t.Cleanup(func() { simPool.Close() })

	ctx := &sequencer.Context{
		Config: sequencer.Config{
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
		Receipts:        receipts.NewIndex(),
	}
	seq := sequencer.New(ctx, noopBroadcaster{})
	signer := types.LatestSignerForChainID(big.NewInt(1))
	eng := NewEngineAPI(seq, base, nil, &fixedRewardEvaluator{}, signer)
	return eng, seq, base
}

func TestEngineAPI_ForkchoiceUpdated_UnknownHeadReturnsSyncing(t *testing.T) {
	eng, _, _ := newTestEngineAPI(t)
	resp, err := eng.ForkchoiceUpdatedV3(engine.ForkchoiceStateV1{HeadBlockHash: common.Hash{0xFF}}, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.SYNCING, resp.PayloadStatus.Status)
}

func TestEngineAPI_ForkchoiceUpdated_StartsBuildingAndGetPayloadSeals(t *testing.T) {
	eng, _, base := newTestEngineAPI(t)
	genesisHash := base.Header(0).Hash()

	attrs := &PayloadAttributesV3{Timestamp: 1000, SuggestedFeeRecipient: common.Address{0x01}}
	resp, err := eng.ForkchoiceUpdatedV3(engine.ForkchoiceStateV1{HeadBlockHash: genesisHash}, attrs)
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, resp.PayloadStatus.Status)
	require.NotNil(t, resp.PayloadID)

	envelope, err := eng.GetPayloadV3(*resp.PayloadID)
	require.NoError(t, err)
	require.NotNil(t, envelope.ExecutionPayload)
	assert.Equal(t, uint64(1), envelope.ExecutionPayload.Number)
	assert.Equal(t, uint64(1), base.HeadBlockNumber())
}

func TestEngineAPI_ForkchoiceUpdated_NoAttrsAcknowledgesHead(t *testing.T) {
	eng, _, base := newTestEngineAPI(t)
	genesisHash := base.Header(0).Hash()

	resp, err := eng.ForkchoiceUpdatedV3(engine.ForkchoiceStateV1{HeadBlockHash: genesisHash}, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, resp.PayloadStatus.Status)
	assert.Nil(t, resp.PayloadID)
}
