// Package router implements the settlement venue for the relay's router contract, which swaps the
// source token into the target token in a single call:
//
//	swapToTarget(uint256 amountIn, uint256 minAmountOut, address recipient)
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/settle"
)

const routerABI = `[
	{"name":"swapToTarget","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"},
		   {"name":"recipient","type":"address"}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

// Router executes sweeps through the router contract.
type Router struct {
	ch          settle.Chain
	token       common.Address // source ERC20
	router      common.Address
	slippageBps int64
	wait        time.Duration
	abi         abi.ABI
}

// New returns a router venue.
func New(ch settle.Chain, token, routerAddr common.Address, slippageBps int64, wait time.Duration) (*Router, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("cannot parse router abi: %w", err)
	}

	return &Router{
		ch:          ch,
		token:       token,
		router:      routerAddr,
		slippageBps: slippageBps,
		wait:        wait,
		abi:         parsed,
	}, nil
}

// Settle sweeps the full source-token balance at the custodial address into the target token,
// sending proceeds to userAddress. Proceeds never transit back through our custody.
func (r *Router) Settle(ctx context.Context, key string, userAddress common.Address) (settle.Receipt, error) {
	k, from, err := settle.LoadKey(key)
	if err != nil {
		return settle.Receipt{}, err
	}

	amount, err := settle.SweepBalance(ctx, r.ch, r.token, from)
	if err != nil {
		return settle.Receipt{}, err
	}

	minOut := settle.MinOut(amount, r.slippageBps)

	if _, err = settle.Approve(ctx, r.ch, k, r.token, r.router, amount, r.wait); err != nil {
		return settle.Receipt{}, err
	}

	data, err := r.abi.Pack("swapToTarget", amount, minOut, userAddress)
	if err != nil {
		return settle.Receipt{}, settle.Fail(settle.StepSwap, err)
	}

	hash, err := settle.Submit(ctx, r.ch, k, r.router, data, r.wait, settle.StepSwap, settle.StepSwapConfirm)
	if err != nil {
		return settle.Receipt{}, err
	}

	return settle.Receipt{TxHash: hash, AmountIn: amount, AmountOut: minOut}, nil
}
