package enginerpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/based-sequencer/receipts"
	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
	"github.com/NethermindEth/based-sequencer/txpool"
)

// Fallback is the subset of an upstream RPC client the Eth API delegates to
// when a read can't be answered from the local Frag view (spec §6, "Reads
// not answerable locally delegate to a configured fallback HTTP endpoint").
// Satisfied by *ethclient.Client; kept narrow so this package doesn't need
// to import blocksync just to call through.
type Fallback interface {
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthAPI serves the Eth API subset of spec §6 from the shared Frag view,
// falling back to an upstream node for anything Frag/Base can't answer.
type EthAPI struct {
	frag     *statedb.Frag
	base     *statedb.Base
	pool     *txpool.TxPool
	receipts *receipts.Index
	fallback Fallback
	signer   types.Signer
	baseFee  func() *uint256.Int
	dispatch txpool.Dispatcher
}

func NewEthAPI(frag *statedb.Frag, base *statedb.Base, pool *txpool.TxPool, idx *receipts.Index, fallback Fallback, signer types.Signer, baseFee func() *uint256.Int, dispatch txpool.Dispatcher) *EthAPI {
	return &EthAPI{frag: frag, base: base, pool: pool, receipts: idx, fallback: fallback, signer: signer, baseFee: baseFee, dispatch: dispatch}
}

// SendRawTransaction implements eth_sendRawTransaction: decodes, recovers
// the sender, and hands the tx to the pool exactly as ingress does in the
// pool package's own tests.
func (a *EthAPI) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	tx, err := txn.Decode(raw, a.signer)
	if err != nil {
		return common.Hash{}, err
	}
	a.pool.HandleNewTx(tx, a.frag, a.baseFee(), a.dispatch)
	return tx.Hash(), nil
}

// GetTransactionReceipt implements eth_getTransactionReceipt, preferring the
// local receipt index and falling back upstream on a miss.
func (a *EthAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*receipts.Receipt, error) {
	if r := a.receipts.Get(hash); r != nil {
		return r, nil
	}
	if a.fallback == nil {
		return nil, nil
	}
	upstream, err := a.fallback.TransactionReceipt(ctx, hash)
	if err != nil || upstream == nil {
		return nil, err
	}
	return &receipts.Receipt{
		TxHash:            upstream.TxHash,
		Status:            upstream.Status,
		GasUsed:           upstream.GasUsed,
		CumulativeGasUsed: upstream.CumulativeGasUsed,
		Logs:              upstream.Logs,
		BlockNumber:       upstream.BlockNumber.Uint64(),
		BlockHash:         upstream.BlockHash,
		TransactionIndex:  upstream.TransactionIndex,
		ContractAddress:   contractAddressOrNil(upstream.ContractAddress),
	}, nil
}

func contractAddressOrNil(addr common.Address) *common.Address {
	if addr == (common.Address{}) {
		return nil
	}
	return &addr
}

// BlockNumber implements eth_blockNumber from the Frag view's current block
// number. Frag sets it to one past Base's committed head when it is created
// or reset at block start, so once that block is committed it equals Base's
// head until the next block starts.
func (a *EthAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(a.frag.HeadBlockNumber())
}

// GetTransactionCount implements eth_getTransactionCount, reading pending
// nonce from Frag for "latest"/"pending" and delegating historical numbers
// upstream.
func (a *EthAPI) GetTransactionCount(ctx context.Context, address common.Address, blockNr rpc.BlockNumber) (hexutil.Uint64, error) {
	if blockNr == rpc.LatestBlockNumber || blockNr == rpc.PendingBlockNumber {
		return hexutil.Uint64(a.frag.GetNonce(address)), nil
	}
	if a.fallback == nil {
		return 0, fmt.Errorf("enginerpc: historical nonce lookups require a fallback endpoint")
	}
	nonce, err := a.fallback.NonceAt(ctx, address, big.NewInt(blockNr.Int64()))
	return hexutil.Uint64(nonce), err
}

// GetBalance implements eth_getBalance, same local/fallback split as
// GetTransactionCount.
func (a *EthAPI) GetBalance(ctx context.Context, address common.Address, blockNr rpc.BlockNumber) (*hexutil.Big, error) {
	if blockNr == rpc.LatestBlockNumber || blockNr == rpc.PendingBlockNumber {
		return (*hexutil.Big)(a.frag.GetBalance(address)), nil
	}
	if a.fallback == nil {
		return nil, fmt.Errorf("enginerpc: historical balance lookups require a fallback endpoint")
	}
	balance, err := a.fallback.BalanceAt(ctx, address, big.NewInt(blockNr.Int64()))
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(balance), nil
}

// GetBlockByNumber implements eth_getBlockByNumber. Locally known headers
// come from Base; anything beyond the committed head delegates upstream.
func (a *EthAPI) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	if number < 0 {
		number = rpc.BlockNumber(a.base.HeadBlockNumber())
	}
	if header := a.base.Header(uint64(number)); header != nil {
		return headerToRPC(header), nil
	}
	if a.fallback == nil {
		return nil, nil
	}
	block, err := a.fallback.BlockByNumber(ctx, big.NewInt(number.Int64()))
	if err != nil || block == nil {
		return nil, err
	}
	log.Trace("enginerpc: served eth_getBlockByNumber from fallback", "number", number)
	return headerToRPC(block.Header()), nil
}

// GetBlockByHash implements eth_getBlockByHash, same split as GetBlockByNumber.
func (a *EthAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]interface{}, error) {
	if header := a.base.HeaderByHash(hash); header != nil {
		return headerToRPC(header), nil
	}
	if a.fallback == nil {
		return nil, nil
	}
	block, err := a.fallback.BlockByHash(ctx, hash)
	if err != nil || block == nil {
		return nil, err
	}
	return headerToRPC(block.Header()), nil
}

func headerToRPC(header *types.Header) map[string]interface{} {
	return map[string]interface{}{
		"number":           hexutil.Uint64(header.Number.Uint64()),
		"hash":             header.Hash(),
		"parentHash":       header.ParentHash,
		"stateRoot":        header.Root,
		"transactionsRoot": header.TxHash,
		"receiptsRoot":     header.ReceiptHash,
		"miner":            header.Coinbase,
		"gasLimit":         hexutil.Uint64(header.GasLimit),
		"gasUsed":          hexutil.Uint64(header.GasUsed),
		"timestamp":        hexutil.Uint64(header.Time),
		"baseFeePerGas":    (*hexutil.Big)(header.BaseFee),
	}
}
