package txn

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedDepositEnvelope(t *testing.T, body depositRLP) []byte {
	t.Helper()
	payload, err := rlp.EncodeToBytes(body)
	require.NoError(t, err)
	return append([]byte{DepositTxType}, payload...)
}

func TestDecodeDeposit_RoundTripsFields(t *testing.T) {
	to := common.HexToAddress("0xBB")
	body := depositRLP{
		SourceHash: common.HexToHash("0x01"),
		From:       common.HexToAddress("0xAA"),
		To:         &to,
		Mint:       big.NewInt(1000),
		Value:      big.NewInt(500),
		Gas:        100_000,
		IsSystemTx: false,
		Data:       []byte{0xde, 0xad},
	}
	raw := encodedDepositEnvelope(t, body)

	deposit, hash, err := DecodeDeposit(raw)
	require.NoError(t, err)
	assert.Equal(t, body.SourceHash, deposit.SourceHash)
	assert.Equal(t, body.From, deposit.From)
	assert.Equal(t, to, *deposit.To)
	assert.Equal(t, body.Mint, deposit.Mint)
	assert.Equal(t, body.Value, deposit.Value)
	assert.Equal(t, body.Gas, deposit.Gas)
	assert.Equal(t, body.Data, deposit.Data)
	assert.NotEqual(t, common.Hash{}, hash)
}

func TestDecodeDeposit_RejectsNonDepositType(t *testing.T) {
	_, _, err := DecodeDeposit([]byte{0x02, 0x01, 0x02})
	assert.Error(t, err)
}

func TestNewDeposit_ProducesDepositKind(t *testing.T) {
	body := depositRLP{
		SourceHash: common.HexToHash("0x02"),
		From:       common.HexToAddress("0xCC"),
		Mint:       big.NewInt(0),
		Value:      big.NewInt(0),
		Gas:        21_000,
	}
	raw := encodedDepositEnvelope(t, body)

	deposit, hash, err := DecodeDeposit(raw)
	require.NoError(t, err)

	tx := NewDeposit(deposit, hash, raw)
	assert.True(t, tx.IsDeposit())
	assert.Equal(t, KindDeposit, tx.Kind())
	assert.Equal(t, body.From, tx.Sender())
	assert.Equal(t, uint64(0), tx.Nonce())
}
