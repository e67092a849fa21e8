package settle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tarancss/drb/lib/chain"
)

// Helpers shared by the venue implementations.

const approveABI = `[
	{"name":"approve","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

var (
	erc20Once sync.Once
	erc20     abi.ABI
	erc20Err  error
)

// LoadKey decodes a hex custodial key and derives its address.
func LoadKey(key string) (*ecdsa.PrivateKey, common.Address, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return nil, common.Address{}, Fail(StepKey, err)
	}

	return k, crypto.PubkeyToAddress(k.PublicKey), nil
}

// SweepBalance reads the full source-token balance at the custodial address. A zero balance is
// ErrNothingToSettle: an earlier sweep already drained it and there is nothing to do.
func SweepBalance(ctx context.Context, ch Chain, token, account common.Address) (*big.Int, error) {
	bal, err := ch.TokenBalance(ctx, token, account)
	if err != nil {
		return nil, Fail(StepBalance, err)
	}

	if bal.Sign() == 0 {
		return nil, ErrNothingToSettle
	}

	return bal, nil
}

// Approve grants the venue a spending authorization over amount of token and waits for it to
// confirm. It is a separate on-chain operation from the swap and can independently fail or be
// dropped; a redundant approval on retry is harmless, it only costs a fee.
func Approve(ctx context.Context, ch Chain, key *ecdsa.PrivateKey, token, spender common.Address,
	amount *big.Int, wait time.Duration) (common.Hash, error) {
	erc20Once.Do(func() {
		erc20, erc20Err = abi.JSON(strings.NewReader(approveABI))
	})

	if erc20Err != nil {
		return common.Hash{}, Fail(StepApprove, erc20Err)
	}

	data, err := erc20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, Fail(StepApprove, err)
	}

	return Submit(ctx, ch, key, token, data, wait, StepApprove, StepApproveConfirm)
}

// Submit broadcasts a signed contract call and waits up to 'wait' for a successful receipt,
// tagging failures with the given steps.
func Submit(ctx context.Context, ch Chain, key *ecdsa.PrivateKey, to common.Address, data []byte,
	wait time.Duration, sendStep, confirmStep string) (common.Hash, error) {
	hash, err := ch.SendCall(ctx, key, to, data)
	if err != nil {
		return common.Hash{}, Fail(sendStep, err)
	}

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	status, err := ch.WaitMined(wctx, hash)
	if err != nil {
		return hash, Fail(confirmStep, err)
	}

	if status != chain.TrxSuccess {
		return hash, Fail(confirmStep, fmt.Errorf("transaction %s reverted: %w", hash.Hex(), errReverted))
	}

	return hash, nil
}

var errReverted = errors.New("execution reverted")
