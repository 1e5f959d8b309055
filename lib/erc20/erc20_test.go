package erc20

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer(t *testing.T) {
	to := "0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f"
	data, err := PackTransfer(to, big.NewInt(1000000))
	require.NoError(t, err)
	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Len(t, data, 68)

	addr, amount, err := UnpackTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(to), addr)
	assert.Equal(t, int64(1000000), amount.Int64())

	_, _, err = UnpackTransfer([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrNotTransfer)

	_, err = PackTransfer("not-an-address", big.NewInt(1))
	assert.Error(t, err)
}

func TestBalanceOf(t *testing.T) {
	data, err := PackBalanceOf("0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f")
	require.NoError(t, err)
	assert.Equal(t, "70a08231", hex.EncodeToString(data[:4]))

	out := common.LeftPadBytes(big.NewInt(42).Bytes(), 32)
	bal, err := UnpackBalance(out)
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal.Int64())
}
