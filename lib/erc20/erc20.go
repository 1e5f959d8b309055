// Package erc20 encodes and decodes the ERC20 calls wallets need: transfer and balanceOf.
package erc20

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const abiJSON = `[
{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

// ErrNotTransfer is returned when call data is not an ERC20 transfer.
var ErrNotTransfer = errors.New("erc20: not a transfer call")

var (
	parsed    abi.ABI
	parseErr  error
	parseOnce sync.Once
)

// ABI returns the parsed ERC20 ABI fragment. It is parsed once on first use.
func ABI() (abi.ABI, error) {
	parseOnce.Do(func() {
		parsed, parseErr = abi.JSON(strings.NewReader(abiJSON))
	})
	return parsed, parseErr
}

// PackTransfer returns the call data of transfer(to, amount).
func PackTransfer(to string, amount *big.Int) ([]byte, error) {
	a, err := ABI()
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("erc20: bad address %q", to)
	}
	return a.Pack("transfer", common.HexToAddress(to), amount)
}

// PackBalanceOf returns the call data of balanceOf(owner).
func PackBalanceOf(owner string) ([]byte, error) {
	a, err := ABI()
	if err != nil {
		return nil, err
	}
	return a.Pack("balanceOf", common.HexToAddress(owner))
}

// UnpackBalance decodes the result of a balanceOf call.
func UnpackBalance(out []byte) (*big.Int, error) {
	a, err := ABI()
	if err != nil {
		return nil, err
	}
	res, err := a.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("erc20: decoding balance: %w", err)
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("erc20: decoding balance: %d values", len(res))
	}
	bal, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("erc20: decoding balance: unexpected %T", res[0])
	}
	return bal, nil
}

// UnpackTransfer decodes transfer call data into the recipient and amount.
func UnpackTransfer(data []byte) (common.Address, *big.Int, error) {
	a, err := ABI()
	if err != nil {
		return common.Address{}, nil, err
	}
	m := a.Methods["transfer"]
	if len(data) < 4 || !bytes.Equal(data[:4], m.ID) {
		return common.Address{}, nil, ErrNotTransfer
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return common.Address{}, nil, ErrNotTransfer
	}
	to, ok1 := args[0].(common.Address)
	amount, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 {
		return common.Address{}, nil, ErrNotTransfer
	}
	return to, amount, nil
}
