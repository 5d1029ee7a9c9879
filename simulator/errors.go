package simulator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SimulationError is the typed failure an Evaluator reports for one tx
// (spec §4.3, "Failure"). The worker never retries; the caller (TxPool via
// the sequencer) is responsible for evicting the offending sender.
type SimulationError struct {
	TxHash common.Hash
	Sender common.Address
	Reason string
	Err    error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulator: tx %s: %s: %v", e.TxHash, e.Reason, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }
