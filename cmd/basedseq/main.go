// Command basedseq runs the based-rollup sequencer: the state machine,
// transaction pool, simulator worker pool, and layered state database
// behind the engine-API-driven block builder, speaking the engine API on
// an authenticated listener and a small Eth API subset on a public one.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/NethermindEth/based-sequencer/blocksync"
	"github.com/NethermindEth/based-sequencer/enginerpc"
	"github.com/NethermindEth/based-sequencer/p2pmsg"
	"github.com/NethermindEth/based-sequencer/receipts"
	"github.com/NethermindEth/based-sequencer/sequencer"
	"github.com/NethermindEth/based-sequencer/simulator"
	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txpool"
)

func main() {
	if os.Getenv("GOTRACEBACK") == "" {
		debug.SetTraceback("all")
	}
	app := &cli.App{
		Name:  "basedseq",
		Usage: "based-rollup sequencer",
		Flags: appFlags,
		Action: func(ctx *cli.Context) error {
			return run(ctx)
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("basedseq: fatal error", "error", err)
	}
}

// stdoutBroadcaster is the default Broadcaster: it logs every frag and seal
// rather than publishing to a real p2p transport, which spec §1 leaves as
// an external collaborator out of scope for this module.
type stdoutBroadcaster struct{}

func (stdoutBroadcaster) BroadcastFrag(f p2pmsg.FragV0) {
	log.Info("basedseq: broadcast frag", "block", f.BlockNumber, "seq", f.Seq, "isLast", f.IsLast, "txs", len(f.TxsRLP))
}

func (stdoutBroadcaster) BroadcastSeal(s p2pmsg.SealV0) {
	log.Info("basedseq: broadcast seal", "block", s.BlockNumber, "hash", s.BlockHash)
}

func run(cliCtx *cli.Context) error {
	baseCfg := statedb.BaseConfig{
		AccountCacheSize: cliCtx.Int(CacheAccountsFlag.Name),
		StorageCacheSize: cliCtx.Int(CacheStorageFlag.Name),
	}
	base := statedb.NewBase(baseCfg)

	genesis := &types.Header{
		Number:   big.NewInt(0),
		GasLimit: 30_000_000,
		BaseFee:  big.NewInt(1_000_000_000),
		Time:     uint64(0),
	}
	base.CommitBlock(genesis, statedb.StateBundle{}, statedb.TrieUpdates{})
	log.Info("basedseq: committed genesis", "hash", genesis.Hash())

	frag := statedb.NewFrag(base)
	pool := txpool.New()

	workers := cliCtx.Int(SimWorkersFlag.Name)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	simPool := simulator.NewPool(context.Background(), workers, func() simulator.Evaluator {
		return simulator.NewTransferEvaluator()
	})
	defer simPool.Close()

	var regolithTime *uint64
	if v := cliCtx.Uint64(RegolithTimeFlag.Name); v != 0 {
		regolithTime = &v
	}

	seqCtx := &sequencer.Context{
		Config: sequencer.Config{
			FragDuration: time.Duration(cliCtx.Int(FragDurationMsFlag.Name)) * time.Millisecond,
			SimsPerLoop:  cliCtx.Int(SimsPerLoopFlag.Name),
			MinLoopSleep: time.Millisecond,
			ChainID:      cliCtx.Uint64(ChainIDFlag.Name),
			RegolithTime: regolithTime,
		},
		Pool:            pool,
		Base:            base,
		Frag:            frag,
		Simulators:      simPool,
		ForcedEvaluator: simulator.NewTransferEvaluator(),
		Receipts:        receipts.NewIndex(),
	}
	seq := sequencer.New(seqCtx, stdoutBroadcaster{})
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(seqCtx.Config.ChainID))

	var fallback enginerpc.Fallback
	var syncer *blocksync.Syncer
	if endpoint := cliCtx.String(FallbackRPCFlag.Name); endpoint != "" {
		fetcher, err := blocksync.NewFetcher(endpoint)
		if err != nil {
			return err
		}
		defer fetcher.Close()
		syncer = blocksync.NewSyncer(fetcher, base, simulator.NewTransferEvaluator(), signer)

		client, err := ethclient.Dial(endpoint)
		if err != nil {
			return fmt.Errorf("basedseq: dial fallback endpoint for reads: %w", err)
		}
		defer client.Close()
		fallback = client
	} else if !cliCtx.Bool(TestModeFlag.Name) {
		log.Warn("basedseq: no fallback RPC endpoint configured and test-mode not set; block-sync catch-up and historical reads are unavailable")
	}

	engineAPI := enginerpc.NewEngineAPI(seq, base, syncer, simulator.NewTransferEvaluator(), signer)
	ethAPI := enginerpc.NewEthAPI(frag, base, pool, seqCtx.Receipts, fallback, signer, func() *uint256.Int {
		baseFee, _ := uint256.FromBig(base.Header(base.HeadBlockNumber()).BaseFee)
		return baseFee
	}, simPool)

	server, err := enginerpc.NewServer(enginerpc.Config{
		HTTPHost:      "127.0.0.1",
		HTTPPort:      cliCtx.Int(HTTPPortFlag.Name),
		WSHost:        "127.0.0.1",
		WSPort:        cliCtx.Int(WSPortFlag.Name),
		AuthAddr:      "127.0.0.1",
		AuthPort:      cliCtx.Int(AuthPortFlag.Name),
		JWTSecretPath: cliCtx.String(JWTSecretFlag.Name),
		Name:          "basedseq",
		DataDir:       cliCtx.String(DataDirFlag.Name),
	}, engineAPI, ethAPI)
	if err != nil {
		return fmt.Errorf("basedseq: construct rpc server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("basedseq: start rpc server: %w", err)
	}
	defer server.Close()

	log.Info("basedseq: listening",
		"authEndpoint", server.AuthHTTPEndpoint(),
		"httpEndpoint", server.HTTPEndpoint(),
		"wsEndpoint", server.WSEndpoint())

	driveLoop(cliCtx.Context, seq, simPool, seqCtx.Config.MinLoopSleep)
	return nil
}

// driveLoop implements spec §5's single-threaded cooperative scheduling:
// tick the sequencer, drain whatever simulation results are ready, sleep
// for the configured minimum, repeat. It never blocks on I/O other than
// the results channel and the configured sleep.
func driveLoop(ctx context.Context, seq *sequencer.Sequencer, simPool *simulator.Pool, minSleep time.Duration) {
	sleep := time.NewTicker(minSleep)
	defer sleep.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-simPool.Results():
			if result.Err != nil {
				seq.HandleSimResult(result.Err.Sender, nil, result.Err)
			} else {
				seq.HandleSimResult(result.Simulated.Tx.Sender(), result.Simulated, nil)
			}
		case <-sleep.C:
			seq.Tick()
		}
	}
}
