// Package settle defines the settlement capability: sweep the full source-token balance held at a
// custodial address and swap it into the target token, sending proceeds directly to the user.
// Venue integrations live in sub-packages; callers depend only on Executor.
package settle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/lib/chain"
)

// Receipt reports one completed sweep. AmountOut is the guaranteed minimum bound the venue had to
// honour, not a quote.
type Receipt struct {
	TxHash    common.Hash
	AmountIn  *big.Int
	AmountOut *big.Int
}

// Executor performs one settlement per call. Settle re-reads the live balance each time, so
// retrying after a failure can never double-spend: funds stay at the custodial address until a
// sweep succeeds.
type Executor interface {
	Settle(ctx context.Context, key string, userAddress common.Address) (Receipt, error)
}

// Chain is the node access a venue needs.
type Chain interface {
	chain.Reader
	chain.Sender
}

// ErrNothingToSettle means the custodial address holds no source-token balance. A benign no-op:
// an earlier sweep already drained it.
var ErrNothingToSettle = errors.New("no balance to settle at deposit address")

// Settlement steps, used in Error.Step and in settlement records.
const (
	StepKey            = "key"
	StepBalance        = "balance"
	StepApprove        = "approve"
	StepApproveConfirm = "approve-confirm"
	StepSwap           = "swap"
	StepSwapConfirm    = "swap-confirm"
)

// Error carries the step a settlement failed at and the underlying cause.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("settlement failed at %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail wraps err into a step-tagged settlement error.
func Fail(step string, err error) *Error {
	return &Error{Step: step, Err: err}
}

// MinOut computes the minimum acceptable swap output for amount given a slippage tolerance in
// basis points.
func MinOut(amount *big.Int, slippageBps int64) *big.Int {
	keep := big.NewInt(10000 - slippageBps)

	out := new(big.Int).Mul(amount, keep)

	return out.Div(out, big.NewInt(10000))
}
