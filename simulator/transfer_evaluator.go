package simulator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/NethermindEth/based-sequencer/statedb"
	"github.com/NethermindEth/based-sequencer/txn"
)

// TransferEvaluator is a minimal stand-in Evaluator that only moves value
// between accounts and charges intrinsic gas; it does not interpret
// contract code. The concrete EVM interpreter is an external collaborator
// out of scope here (spec §1), so this exists purely to give cmd/basedseq
// something runnable to wire by default when no real vm.EVM-backed
// Evaluator has been substituted. Transactions with non-empty Data or
// pointed at a contract account fail rather than silently doing nothing.
type TransferEvaluator struct {
	env BlockEnv
}

func NewTransferEvaluator() *TransferEvaluator {
	return &TransferEvaluator{}
}

func (e *TransferEvaluator) SetBlockEnv(env BlockEnv) { e.env = env }

const intrinsicGas = 21000

func (e *TransferEvaluator) Execute(view statedb.View, tx *txn.Transaction) (ExecResult, error) {
	if len(tx.Data()) != 0 {
		return ExecResult{}, fmt.Errorf("simulator: transfer evaluator cannot execute contract calldata for %s", tx.Hash())
	}
	if to := tx.To(); to != nil {
		if acc := view.BasicRef(*to); acc != nil && acc.CodeHash != (common.Hash{}) && acc.CodeHash != types.EmptyCodeHash {
			return ExecResult{}, fmt.Errorf("simulator: transfer evaluator cannot execute contract account %s for %s", *to, tx.Hash())
		}
	}

	sender := tx.Sender()
	senderBalance := view.GetBalance(sender)
	gasPrice := tx.EffectiveGasPrice(e.env.BaseFee)
	cost := new(big.Int).Mul(gasPrice.ToBig(), big.NewInt(intrinsicGas))
	cost.Add(cost, tx.Value())
	if senderBalance.Cmp(cost) < 0 {
		return ExecResult{}, fmt.Errorf("simulator: insufficient balance for %s: have %s, want %s", sender, senderBalance, cost)
	}

	senderAfter := new(big.Int).Sub(senderBalance, cost)
	senderNonce := tx.Nonce() + 1

	delta := statedb.StateBundle{
		sender: {Nonce: &senderNonce, Balance: senderAfter},
	}

	if to := tx.To(); to != nil && tx.Value().Sign() > 0 {
		recipientBalance := view.GetBalance(*to)
		if *to == sender {
			recipientBalance = senderAfter
		}
		recipientAfter := new(big.Int).Add(recipientBalance, tx.Value())
		delta[*to] = &statedb.AccountWrite{Balance: recipientAfter}
	}

	priorityFee := tx.EffectivePriorityFee(e.env.BaseFee)
	coinbaseReward := new(big.Int).Mul(priorityFee.ToBig(), big.NewInt(intrinsicGas))
	coinbaseAfter := new(big.Int).Add(view.GetBalance(e.env.Coinbase), coinbaseReward)

	return ExecResult{
		Status:        types.ReceiptStatusSuccessful,
		GasUsed:       intrinsicGas,
		Delta:         delta,
		CoinbaseAfter: coinbaseAfter,
	}, nil
}

var _ Evaluator = (*TransferEvaluator)(nil)
