package enginerpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/NethermindEth/based-sequencer/apperr"
	"github.com/NethermindEth/based-sequencer/blocksync"
	"github.com/NethermindEth/based-sequencer/sequencer"
	"github.com/NethermindEth/based-sequencer/simulator"
	"github.com/NethermindEth/based-sequencer/statedb"
)

// EngineAPI implements the engine_* method subset of spec §6 over the
// sequencer core. Method names map to JSON-RPC names by go-ethereum's usual
// rpc-server convention (ForkchoiceUpdatedV3 -> engine_forkchoiceUpdatedV3),
// the same convention exercised by node_auth_test.go's helloRPC service.
type EngineAPI struct {
	seq    *sequencer.Sequencer
	base   *statedb.Base
	syncer *blocksync.Syncer

	// payloadEvaluator replays a fully-specified block's transactions for
	// NewPayloadV3 and block-sync, separate from the sequencer's own
	// worker pool and ForcedEvaluator so validating someone else's block
	// never contends with actively building one.
	payloadEvaluator simulator.Evaluator
	signer           types.Signer
}

func NewEngineAPI(seq *sequencer.Sequencer, base *statedb.Base, syncer *blocksync.Syncer, payloadEvaluator simulator.Evaluator, signer types.Signer) *EngineAPI {
	return &EngineAPI{seq: seq, base: base, syncer: syncer, payloadEvaluator: payloadEvaluator, signer: signer}
}

// ForkchoiceUpdatedV3 implements engine_forkchoiceUpdatedV3 (spec §6): with
// attrs present, starts building the next block and returns a fresh
// payloadId; without it, just acknowledges the head.
func (e *EngineAPI) ForkchoiceUpdatedV3(update engine.ForkchoiceStateV1, attrs *PayloadAttributesV3) (engine.ForkChoiceResponse, error) {
	parent := e.base.HeaderByHash(update.HeadBlockHash)
	if parent == nil {
		log.Warn("enginerpc: forkchoiceUpdated on unknown head", "hash", update.HeadBlockHash)
		return engine.ForkChoiceResponse{
			PayloadStatus: engine.PayloadStatusV1{Status: engine.SYNCING},
		}, nil
	}

	headHash := update.HeadBlockHash
	if attrs == nil {
		return engine.ForkChoiceResponse{
			PayloadStatus: engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &headHash},
		}, nil
	}

	id, err := e.seq.HandleForkchoiceUpdated(parent, attrs.toSequencer())
	if err != nil {
		log.Error("enginerpc: forkchoiceUpdated failed to start building", "err", err)
		errStr := err.Error()
		return engine.ForkChoiceResponse{
			PayloadStatus: engine.PayloadStatusV1{Status: engine.INVALID, ValidationError: &errStr},
		}, err
	}
	return engine.ForkChoiceResponse{
		PayloadStatus: engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &headHash},
		PayloadID:     &id,
	}, nil
}

// NewPayloadV3 implements engine_newPayloadV3 (spec §6): validates and
// commits a finalized block, fast-forwarding through blocksync first if the
// payload is ahead of the local head (spec §4.5).
func (e *EngineAPI) NewPayloadV3(payload engine.ExecutableData, versionedHashes []common.Hash, parentBeaconBlockRoot *common.Hash) (engine.PayloadStatusV1, error) {
	header := headerFromExecutableData(payload, parentBeaconBlockRoot)

	txs := make([]*types.Transaction, len(payload.Transactions))
	for i, raw := range payload.Transactions {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			errStr := err.Error()
			return engine.PayloadStatusV1{Status: engine.INVALID, ValidationError: &errStr}, err
		}
		txs[i] = tx
	}
	header.TxHash = types.DeriveSha(types.Transactions(txs), trie.NewStackTrie(nil))
	block := types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: txs})

	if head := e.base.HeadBlockNumber(); payload.Number > head+1 {
		if e.syncer == nil {
			err := apperr.Protocol("new_payload", fmt.Errorf("head behind by %d blocks, no fallback syncer configured", payload.Number-head))
			errStr := err.Error()
			return engine.PayloadStatusV1{Status: engine.ACCEPTED, ValidationError: &errStr}, err
		}
		if err := e.syncer.CatchUp(context.Background(), payload.Number-1); err != nil {
			log.Error("enginerpc: block-sync catch-up failed", "target", payload.Number-1, "err", err)
			errStr := err.Error()
			return engine.PayloadStatusV1{Status: engine.INVALID, ValidationError: &errStr}, err
		}
	}

	if err := blocksync.ApplyBlock(e.base, e.payloadEvaluator, e.signer, block); err != nil {
		log.Error("enginerpc: newPayload failed to validate/commit", "number", payload.Number, "err", err)
		errStr := err.Error()
		return engine.PayloadStatusV1{Status: engine.INVALID, ValidationError: &errStr}, err
	}

	hash := block.Hash()
	return engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &hash}, nil
}

// GetPayloadV3 implements engine_getPayloadV3 (spec §6): seals the current
// block and returns its execution-payload envelope. The payloadId itself is
// not re-validated against HandleForkchoiceUpdated's returned id: the
// sequencer only ever has one block in flight at a time (spec §4.4 states),
// so any call here targets that block.
func (e *EngineAPI) GetPayloadV3(id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	header, seal, err := e.seq.HandleGetPayload()
	if err != nil {
		return nil, err
	}
	built := e.seq.LastPayload()

	var bloom []byte
	if header.Bloom != (types.Bloom{}) {
		bloom = header.Bloom.Bytes()
	} else {
		bloom = make([]byte, types.BloomByteLength)
	}

	payload := &engine.ExecutableData{
		ParentHash:    header.ParentHash,
		FeeRecipient:  header.Coinbase,
		StateRoot:     header.Root,
		ReceiptsRoot:  seal.ReceiptsRoot,
		LogsBloom:     bloom,
		Random:        header.MixDigest,
		Number:        header.Number.Uint64(),
		GasLimit:      header.GasLimit,
		GasUsed:       header.GasUsed,
		Timestamp:     header.Time,
		ExtraData:     header.Extra,
		BaseFeePerGas: header.BaseFee,
		BlockHash:     header.Hash(),
		Transactions:  built.RawTxs,
		Withdrawals:   []*types.Withdrawal{},
	}
	return &engine.ExecutionPayloadEnvelope{ExecutionPayload: payload, BlockValue: new(big.Int)}, nil
}
