// Package sequencer implements the based-rollup sequencer's state machine
// (spec §4.4, "Sequencer State Machine"): the single-threaded cooperative
// loop that turns pool transactions and payload attributes into sealed
// frags and blocks.
package sequencer

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/apperr"
	"github.com/NethermindEth/based-sequencer/p2pmsg"
	"github.com/NethermindEth/based-sequencer/simulator"
	"github.com/NethermindEth/based-sequencer/txn"
)

// rawEnvelopeList adapts raw typed-transaction envelope bytes to
// types.DerivableList so the transactions root can be derived directly from
// what was broadcast, without round-tripping every tx through a standard
// *types.Transaction - which can't represent a deposit envelope at all. The
// EIP-2718 trie value for a typed tx is exactly its type byte plus payload,
// i.e. the raw envelope, so no re-encoding is needed.
type rawEnvelopeList [][]byte

func (r rawEnvelopeList) Len() int { return len(r) }

func (r rawEnvelopeList) EncodeIndex(i int, w *bytes.Buffer) { w.Write(r[i]) }

// Broadcaster is where sealed frags and seals go once produced. The
// sequencer never knows about the transport (spec §6 treats the outbound
// stream's transport as opaque to the core).
type Broadcaster interface {
	BroadcastFrag(p2pmsg.FragV0)
	BroadcastSeal(p2pmsg.SealV0)
}

// BuiltPayload is everything enginerpc's GetPayloadV3 needs to answer the
// engine API caller: the sealed header plus the raw tx envelopes that went
// into it, in the order they were applied across every frag of the block.
type BuiltPayload struct {
	Header *types.Header
	RawTxs [][]byte
}

// Sequencer drives Context through its state transitions. It is meant to
// be owned by a single goroutine pinned to its own core, per spec §5's
// scheduling model; nothing here is safe for concurrent use.
type Sequencer struct {
	ctx   *Context
	state State
	out   Broadcaster

	lastPayload *BuiltPayload
}

func New(ctx *Context, out Broadcaster) *Sequencer {
	return &Sequencer{ctx: ctx, state: WaitingForSync(), out: out}
}

func (s *Sequencer) State() State { return s.state }

// HandleForkchoiceUpdated implements the fcu-with-attrs branch of spec §6's
// engine_forkchoiceUpdatedV3: entering Sorting for a new block.
func (s *Sequencer) HandleForkchoiceUpdated(parent *types.Header, attrs *PayloadAttributes) (engine.PayloadID, error) {
	if s.state.Phase == PhaseSyncing {
		return engine.PayloadID{}, apperr.Protocol("fcu", fmt.Errorf("cannot start building while syncing to %d", s.state.SyncTarget))
	}
	s.ctx.ParentHeader = parent
	s.ctx.PayloadAttributes = attrs
	s.ctx.Coinbase = attrs.SuggestedFeeRecipient

	if err := s.enterSorting(); err != nil {
		return engine.PayloadID{}, err
	}
	return payloadID(parent.Hash(), attrs), nil
}

// payloadID computes an 8-byte payload identifier by hashing the components
// of the build request, following the standard go-ethereum/op-geth
// BuildPayloadArgs.Id() construction.
func payloadID(parentHash common.Hash, attrs *PayloadAttributes) engine.PayloadID {
	hasher := sha256.New()
	hasher.Write(parentHash[:])
	binary.Write(hasher, binary.BigEndian, attrs.Timestamp)
	hasher.Write(attrs.Random[:])
	hasher.Write(attrs.SuggestedFeeRecipient[:])
	rlp.Encode(hasher, attrs.Withdrawals)
	if attrs.BeaconRoot != nil {
		hasher.Write(attrs.BeaconRoot[:])
	}
	if attrs.NoTxPool || len(attrs.Transactions) > 0 {
		binary.Write(hasher, binary.BigEndian, attrs.NoTxPool)
		binary.Write(hasher, binary.BigEndian, uint64(len(attrs.Transactions)))
		for _, raw := range attrs.Transactions {
			h := crypto.Keccak256Hash(raw)
			hasher.Write(h[:])
		}
	}
	if attrs.GasLimit != nil {
		binary.Write(hasher, binary.BigEndian, *attrs.GasLimit)
	}
	var id engine.PayloadID
	copy(id[:], hasher.Sum(nil)[:8])
	id[0] = byte(engine.PayloadV3)
	return id
}

// enterSorting builds block_env, pushes EvmBlockParams to every simulator,
// applies forced inclusions, and opens fresh FragSequence/SortingData (spec
// §4.4, "Entering Sorting").
func (s *Sequencer) enterSorting() error {
	attrs := s.ctx.PayloadAttributes
	parent := s.ctx.ParentHeader
	blockNumber := parent.Number.Uint64() + 1
	gasLimit := parent.GasLimit
	if attrs.GasLimit != nil {
		gasLimit = *attrs.GasLimit
	}

	s.ctx.Frag.Reset()
	s.ctx.BaseFee = computeBaseFee(parent)

	regolithActive := s.ctx.RegolithActive(attrs.Timestamp)
	env := envForBlock(blockNumber, attrs, s.ctx.Coinbase, gasLimit, s.ctx.BaseFee, regolithActive)
	s.ctx.Simulators.SetBlockEnv(env)

	frag := NewFragSequence(blockNumber, attrs.Timestamp, gasLimit)
	sorting := NewSortingData(s.ctx.Frag, gasLimit, s.ctx.Pool.Active(), attrs.NoTxPool, s.ctx.Config.FragDuration)

	forced, err := s.ctx.ForcedInclusionTxs(types.LatestSignerForChainID(new(big.Int).SetUint64(s.ctx.Config.ChainID)))
	if err != nil {
		return apperr.Protocol("enter_sorting", fmt.Errorf("decode forced inclusions: %w", err))
	}
	if len(forced) > 0 && s.ctx.ForcedEvaluator == nil {
		return apperr.Protocol("enter_sorting", fmt.Errorf("forced inclusions present but no evaluator configured"))
	}
	if s.ctx.ForcedEvaluator != nil {
		s.ctx.ForcedEvaluator.SetBlockEnv(env)
	}
	for _, tx := range forced {
		var depositNonce *uint64
		if tx.IsDeposit() && regolithActive {
			n := sorting.Sort.GetNonce(tx.Sender())
			depositNonce = &n
		}
		result, err := s.ctx.ForcedEvaluator.Execute(sorting.Sort, tx)
		if err != nil {
			return apperr.Protocol("enter_sorting", fmt.Errorf("forced inclusion %s failed: %w", tx.Hash(), err))
		}
		if result.GasUsed > sorting.GasRemaining {
			return apperr.Protocol("enter_sorting", fmt.Errorf("forced inclusion %s uses %d gas, exceeding the %d remaining in the block", tx.Hash(), result.GasUsed, sorting.GasRemaining))
		}
		log.Trace("sequencer: applied forced inclusion", "sender", tx.Sender(), "hash", tx.Hash(), "gasUsed", result.GasUsed)
		sorting.applyTx(&txn.SimulatedTx{
			Tx:           tx,
			Status:       result.Status,
			GasUsed:      result.GasUsed,
			Logs:         result.Logs,
			Output:       result.Output,
			Payment:      uint256.NewInt(0),
			DepositNonce: depositNonce,
			Delta:        result.Delta,
			VersionID:    sorting.Sort.StateID(),
		})
	}

	s.state = Sorting(sorting, frag)
	return nil
}

// Tick runs one iteration of the sorting main loop (spec §4.4, "Sorting
// main loop"). It is a no-op outside PhaseSorting. The caller
// (cmd/basedseq's driveLoop) invokes Tick repeatedly with
// Config.MinLoopSleep between calls.
func (s *Sequencer) Tick() {
	if s.state.Phase != PhaseSorting {
		return
	}
	sorting := s.state.Sorting

	if sorting.ShouldSealFrag() {
		s.sealFrag(false)
		return
	}
	if sorting.ShouldSendNextSims() {
		sorting.MaybeApply()
		for _, tx := range sorting.NextBatch(s.ctx.Config.SimsPerLoop) {
			s.ctx.Simulators.SubmitSort(tx, sorting.Sort.Clone())
		}
	}
}

// HandleSimResult implements spec §4.4 "On sim-result": drops results
// whose version id no longer matches the live Sort snapshot and
// re-dispatches a fresh top-of-frag simulation of the tx against Frag.
// Results carry no marker of whether they came from a top-of-frag or an
// in-sort simulation, so every stale result is re-dispatched this way, not
// only stale top-of-frag ones.
func (s *Sequencer) HandleSimResult(sender common.Address, sim *txn.SimulatedTx, simErr error) {
	if s.state.Phase != PhaseSorting {
		return
	}
	sorting := s.state.Sorting
	if sim != nil && !sorting.IsValid(sim.VersionID) {
		log.Trace("sequencer: dropping stale sim result", "sender", sender, "got", sim.VersionID, "want", sorting.Sort.StateID())
		s.ctx.Simulators.DispatchTOF(sim.Tx, s.ctx.Frag)
		return
	}
	baseFee := s.ctx.BaseFee
	sorting.HandleSimResult(sender, sim, simErr, baseFee)
}

// sealFrag commits sorting's accumulated deltas into Frag, broadcasts the
// FragV0 message, forwards the pool past the mined txs, and opens a fresh
// SortingData (spec §4.4, "Sealing a frag").
func (s *Sequencer) sealFrag(isLast bool) {
	sorting := s.state.Sorting
	frag := s.state.Frag

	s.ctx.Frag.CommitFlatChanges(sorting.Sort.FlatBundle())
	if s.ctx.Receipts != nil {
		s.ctx.Receipts.RecordFrag(frag.BlockNumber, sorting.Txs, frag.GasUsed)
	}
	msg := frag.SealFrag(sorting, isLast)
	s.out.BroadcastFrag(msg)

	minedTxs := make([]*txn.Transaction, len(sorting.Txs))
	for i, tx := range sorting.Txs {
		minedTxs[i] = tx.Tx
	}
	s.ctx.Pool.HandleNewBlock(minedTxs, s.ctx.BaseFee, s.ctx.Frag, s.ctx.Simulators)

	if isLast {
		return
	}
	noTxPool := s.ctx.PayloadAttributes != nil && s.ctx.PayloadAttributes.NoTxPool
	next := NewSortingData(s.ctx.Frag, frag.GasRemaining, s.ctx.Pool.Active(), noTxPool, s.ctx.Config.FragDuration)
	s.state = Sorting(next, frag)
}

// HandleGetPayload implements spec §4.4 "Sealing the block" (on
// get_payload): seals the final frag, computes and verifies the state
// root, builds the header, and emits the SealV0 message.
func (s *Sequencer) HandleGetPayload() (*types.Header, p2pmsg.SealV0, error) {
	if s.state.Phase != PhaseSorting {
		return nil, p2pmsg.SealV0{}, apperr.Protocol("get_payload", fmt.Errorf("not sorting"))
	}
	frag := s.state.Frag

	s.sealFrag(true)

	// bundle is the full block's accumulated delta, not just the last
	// frag's: every sealFrag call folds its Sort into Frag via
	// CommitFlatChanges, and Frag.FlatBundle reads back everything folded
	// in since the block started (spec §4.4 step 2, "Base overlaid with
	// the block's full bundle").
	bundle := s.ctx.Frag.FlatBundle()
	root, updates := s.ctx.Base.CalculateStateRoot(bundle)
	txsRoot, receiptsRoot := blockTxsAndReceiptsRoots(frag.Txs)

	header := &types.Header{
		ParentHash:  s.ctx.ParentHeader.Hash(),
		Coinbase:    s.ctx.Coinbase,
		Root:        root,
		TxHash:      txsRoot,
		ReceiptHash: receiptsRoot,
		Number:      new(big.Int).SetUint64(frag.BlockNumber),
		GasLimit:    frag.GasUsed + frag.GasRemaining,
		GasUsed:     frag.GasUsed,
		Time:        frag.Timestamp,
		Difficulty:  common.Big0,
		BaseFee:     s.ctx.BaseFee.ToBig(),
	}
	if s.ctx.PayloadAttributes != nil {
		header.MixDigest = s.ctx.PayloadAttributes.Random
		header.ParentBeaconRoot = s.ctx.PayloadAttributes.BeaconRoot
		wroot := types.EmptyWithdrawalsHash
		header.WithdrawalsHash = &wroot
	}

	committed := s.ctx.Base.CommitBlock(header, bundle, updates)
	if committed != root {
		return nil, p2pmsg.SealV0{}, apperr.Protocol("get_payload", fmt.Errorf("state root mismatch: computed %s, committed %s", root, committed))
	}

	seal := p2pmsg.SealV0{
		TotalFrags:       frag.NextSeq,
		BlockNumber:      frag.BlockNumber,
		GasUsed:          frag.GasUsed,
		GasLimit:         header.GasLimit,
		ParentHash:       header.ParentHash,
		TransactionsRoot: txsRoot,
		ReceiptsRoot:     receiptsRoot,
		StateRoot:        root,
		BlockHash:        header.Hash(),
	}
	if s.ctx.Receipts != nil {
		s.ctx.Receipts.SetBlockHash(frag.BlockNumber, header.Hash())
	}
	s.out.BroadcastSeal(seal)
	s.state = WaitingForPayloadAttributes()

	rawTxs := make([][]byte, len(frag.Txs))
	for i, sim := range frag.Txs {
		rawTxs[i] = sim.Tx.Raw()
	}
	s.lastPayload = &BuiltPayload{Header: header, RawTxs: rawTxs}

	return header, seal, nil
}

// LastPayload returns the most recently sealed block's header and raw
// transaction list, for enginerpc's GetPayloadV3 to wrap into an
// engine.ExecutionPayloadEnvelope. Returns nil before the first block seals.
func (s *Sequencer) LastPayload() *BuiltPayload { return s.lastPayload }

// blockTxsAndReceiptsRoots derives the real transactions/receipts roots
// from every tx applied across the block's frags, the way go-ethereum
// itself computes them, so replaying FragV0...SealV0 reconstructs the
// identical header (spec §8).
func blockTxsAndReceiptsRoots(txs []*txn.SimulatedTx) (common.Hash, common.Hash) {
	rawTxs := make(rawEnvelopeList, len(txs))
	receiptList := make(types.Receipts, len(txs))
	var cumulative uint64
	for i, sim := range txs {
		rawTxs[i] = sim.Tx.Raw()
		cumulative += sim.GasUsed
		receiptList[i] = sim.Receipt(cumulative)
	}
	txsRoot := types.DeriveSha(rawTxs, trie.NewStackTrie(nil))
	receiptsRoot := types.DeriveSha(receiptList, trie.NewStackTrie(nil))
	return txsRoot, receiptsRoot
}

// computeBaseFee derives the next block's base fee: the parent's base fee,
// passed through unchanged, or 1 if the parent carries none. No EIP-1559
// adjustment is applied.
func computeBaseFee(parent *types.Header) *uint256.Int {
	if parent.BaseFee == nil {
		return uint256.NewInt(1)
	}
	v, _ := uint256.FromBig(parent.BaseFee)
	return v
}

func envForBlock(number uint64, attrs *PayloadAttributes, coinbase common.Address, gasLimit uint64, baseFee *uint256.Int, regolithActive bool) simulator.BlockEnv {
	return simulator.BlockEnv{
		Number:         number,
		Timestamp:      attrs.Timestamp,
		Coinbase:       coinbase,
		GasLimit:       gasLimit,
		BaseFee:        baseFee,
		RegolithActive: regolithActive,
	}
}
