package simulator

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
)

// request is a unit of work submitted to a worker: either a top-of-frag or
// an in-sort simulation, distinguished by which view it carries.
type request struct {
	tx   *txn.Transaction
	frag *statedb.Frag
	sort *statedb.Sort
}

// Result is what a worker hands back on its output channel: one of
// Simulated or Err is set, never both.
type Result struct {
	Simulated *txn.SimulatedTx
	Err       *SimulationError
}

// Pool is the process-wide pool of simulator workers (spec §4.3). Workers
// are goroutines and are not pinned to cores. They never share mutable
// state with each other or with the sequencer; each holds one Evaluator of
// its own, which runs both top-of-frag and in-sort requests against the
// view each request carries.
type Pool struct {
	requests chan request
	results  chan Result
	newEval  func() Evaluator
	group    *errgroup.Group
	cancel   context.CancelFunc
	env      atomic.Pointer[BlockEnv]
}

// NewPool starts n workers, each constructed via newEval (so every worker
// gets its own independent Evaluator instance rather than sharing one).
func NewPool(ctx context.Context, n int, newEval func() Evaluator) *Pool {
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	p := &Pool{
		requests: make(chan request, n*4),
		results:  make(chan Result, n*4),
		newEval:  newEval,
		group:    group,
		cancel:   cancel,
	}
	p.env.Store(&BlockEnv{})
	for i := 0; i < n; i++ {
		group.Go(func() error {
			p.runWorker(ctx)
			return nil
		})
	}
	return p
}

// SetBlockEnv broadcasts a new EvmBlockParams to every worker: the next
// Execute call on any worker picks up env before running.
func (p *Pool) SetBlockEnv(env BlockEnv) {
	p.env.Store(&env)
}

func (p *Pool) runWorker(ctx context.Context) {
	eval := p.newEval()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-p.requests:
			if !ok {
				return
			}
			eval.SetBlockEnv(*p.env.Load())
			p.results <- p.simulate(eval, req)
		}
	}
}

func (p *Pool) simulate(eval Evaluator, req request) Result {
	view, versionID := viewAndTag(req)
	env := p.env.Load()

	sender := req.tx.Sender()
	preCoinbase := new(big.Int)
	if acc := view.BasicRef(env.Coinbase); acc != nil {
		preCoinbase.Set(acc.Balance)
	}
	var preNonce *uint64
	if req.tx.IsDeposit() && env.RegolithActive {
		n := view.GetNonce(sender)
		preNonce = &n
	}

	result, err := eval.Execute(view, req.tx)
	if err != nil {
		log.Trace("simulator: execution failed", "tx", req.tx.Hash(), "err", err)
		return Result{Err: &SimulationError{TxHash: req.tx.Hash(), Sender: sender, Reason: "execute", Err: err}}
	}

	payment := new(big.Int)
	if result.CoinbaseAfter != nil {
		payment.Sub(result.CoinbaseAfter, preCoinbase)
	}
	paymentU256, _ := uint256.FromBig(payment)
	if req.tx.IsDeposit() {
		paymentU256 = uint256.NewInt(0)
	}

	sim := &txn.SimulatedTx{
		Tx:           req.tx,
		Status:       result.Status,
		GasUsed:      result.GasUsed,
		Logs:         result.Logs,
		Output:       result.Output,
		Payment:      paymentU256,
		DepositNonce: preNonce,
		Delta:        result.Delta,
		VersionID:    versionID,
	}
	return Result{Simulated: sim}
}

func viewAndTag(req request) (statedb.View, uint64) {
	if req.sort != nil {
		return req.sort, req.sort.StateID()
	}
	return req.frag, req.frag.StateID()
}

// DispatchTOF enqueues a top-of-frag simulation request against frag. This
// is also Pool's implementation of txpool.Dispatcher.
func (p *Pool) DispatchTOF(tx *txn.Transaction, frag *statedb.Frag) {
	p.requests <- request{tx: tx, frag: frag}
}

// SubmitSort enqueues an in-sort simulation request against a cloned Sort
// snapshot.
func (p *Pool) SubmitSort(tx *txn.Transaction, sort *statedb.Sort) {
	p.requests <- request{tx: tx, sort: sort}
}

func (p *Pool) Results() <-chan Result { return p.results }

// Close stops accepting new work and waits for in-flight simulations to
// finish before returning.
func (p *Pool) Close() error {
	p.cancel()
	close(p.requests)
	return p.group.Wait()
}
