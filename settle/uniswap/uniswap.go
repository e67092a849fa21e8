// Package uniswap implements the settlement venue for a Uniswap-v3 style swap router using the
// exactInputSingle entry point against a single pool.
package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/settle"
)

const swapABI = `[
	{"name":"exactInputSingle","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

// deadlineWindow bounds how stale a price the pool may execute at.
const deadlineWindow = 20 * time.Minute

// swapParams mirrors the exactInputSingle tuple for abi packing.
type swapParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Uniswap executes sweeps through a v3 swap router.
type Uniswap struct {
	ch          settle.Chain
	token       common.Address // source ERC20
	target      common.Address // token swapped into
	router      common.Address
	poolFee     int64
	slippageBps int64
	wait        time.Duration
	abi         abi.ABI
}

// New returns a uniswap venue. poolFee is in hundredths of a bip (3000 = 0.3%).
func New(ch settle.Chain, token, target, routerAddr common.Address, poolFee, slippageBps int64,
	wait time.Duration) (*Uniswap, error) {
	parsed, err := abi.JSON(strings.NewReader(swapABI))
	if err != nil {
		return nil, fmt.Errorf("cannot parse swap router abi: %w", err)
	}

	return &Uniswap{
		ch:          ch,
		token:       token,
		target:      target,
		router:      routerAddr,
		poolFee:     poolFee,
		slippageBps: slippageBps,
		wait:        wait,
		abi:         parsed,
	}, nil
}

// Settle sweeps the full source-token balance at the custodial address through the pool, sending
// the target token directly to userAddress.
func (u *Uniswap) Settle(ctx context.Context, key string, userAddress common.Address) (settle.Receipt, error) {
	k, from, err := settle.LoadKey(key)
	if err != nil {
		return settle.Receipt{}, err
	}

	amount, err := settle.SweepBalance(ctx, u.ch, u.token, from)
	if err != nil {
		return settle.Receipt{}, err
	}

	minOut := settle.MinOut(amount, u.slippageBps)

	if _, err = settle.Approve(ctx, u.ch, k, u.token, u.router, amount, u.wait); err != nil {
		return settle.Receipt{}, err
	}

	params := swapParams{
		TokenIn:           u.token,
		TokenOut:          u.target,
		Fee:               big.NewInt(u.poolFee),
		Recipient:         userAddress,
		Deadline:          big.NewInt(time.Now().Add(deadlineWindow).Unix()),
		AmountIn:          amount,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data, err := u.abi.Pack("exactInputSingle", params)
	if err != nil {
		return settle.Receipt{}, settle.Fail(settle.StepSwap, err)
	}

	hash, err := settle.Submit(ctx, u.ch, k, u.router, data, u.wait, settle.StepSwap, settle.StepSwapConfirm)
	if err != nil {
		return settle.Receipt{}, err
	}

	return settle.Receipt{TxHash: hash, AmountIn: amount, AmountOut: minOut}, nil
}
