// Package chain defines the interface required for the blockchain connection.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer is one ERC20 transfer event delivered by the node's subscription.
type Transfer struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    *big.Int       `json:"value"`
	Block    uint64         `json:"block"`
	TxHash   common.Hash    `json:"txHash"`
	LogIndex uint           `json:"logIndex"`
}

// Subscription is the handle to an open event stream. Err delivers at most one error: the stream
// is dead once it fires.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Watcher delivers the source token's transfer events into sink until the context is cancelled
// or the subscription fails.
type Watcher interface {
	SubscribeTransfers(ctx context.Context, sink chan<- Transfer) (Subscription, error)
}

// Reader reads token state without spending anything.
type Reader interface {
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// Sender signs and submits contract calls and waits for their receipts. Once SendCall returns,
// the transaction is broadcast and irrevocable; cancelling the context only abandons the wait.
type Sender interface {
	SendCall(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, data []byte) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (uint64, error)
}

// Receipt status values as reported by WaitMined.
const (
	TrxFailed  uint64 = 0
	TrxSuccess uint64 = 1
)

// Errors returned
var (
	ErrWaitTimeout = errors.New("timed out waiting for transaction receipt")
)
