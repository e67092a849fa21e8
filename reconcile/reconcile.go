// Package reconcile re-scans custodial token balances independent of the event stream. A
// settlement that failed on a transient RPC or venue error leaves funds sitting at the deposit
// address with no event to re-trigger it; the sweeper finds those balances and re-dispatches the
// same sweep, which re-reads the live balance and so can never double-process.
package reconcile

import (
	"context"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tarancss/ethcli"

	"github.com/tarancss/drb/lib/store"
)

// BalanceReader reads the source-token balance of an account.
type BalanceReader interface {
	TokenBalance(account string) (*big.Int, error)
}

// EthBalances implements BalanceReader over a plain JSON-RPC endpoint. Polling needs no
// subscription support, so it uses its own http connection rather than the monitor's websocket.
type EthBalances struct {
	c     *ethcli.EthCli
	token string
}

// NewEthBalances connects to the node at 'node', using secret if Basic Authentication is required.
func NewEthBalances(node, secret, token string) (*EthBalances, error) {
	c := ethcli.Init(node, secret)
	if c == nil {
		return nil, errors.New("cannot connect to ethereum node in " + node)
	}

	return &EthBalances{c: c, token: token}, nil
}

// Close ends the node connection.
func (e *EthBalances) Close() {
	e.c.End()
}

// TokenBalance returns the token balance of account.
func (e *EthBalances) TokenBalance(account string) (*big.Int, error) {
	_, tokBal, err := e.c.GetBalance(account, e.token)
	if err != nil {
		return nil, err
	}

	return tokBal, nil
}

// Sweeper walks all deposit addresses on a fixed interval and triggers a settlement for every
// non-zero balance found.
type Sweeper struct {
	db      store.DB
	bal     BalanceReader
	trigger func(common.Address)
	every   time.Duration
}

// New returns a sweeper that calls trigger for each deposit address holding a balance.
func New(db store.DB, bal BalanceReader, trigger func(common.Address), every time.Duration) *Sweeper {
	return &Sweeper{db: db, bal: bal, trigger: trigger, every: every}
}

// Run blocks, sweeping every interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("Reconciling custodial balances every %s", s.every)

	tick := time.NewTicker(s.every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Print("Reconciler stopped")

			return
		case <-tick.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	addrs, err := s.db.DepositAddresses(ctx)
	if err != nil {
		log.Printf("Reconciler cannot list deposit addresses: %e", err)

		return
	}

	for _, a := range addrs {
		b, err := s.bal.TokenBalance(a)
		if err != nil {
			log.Printf("Reconciler cannot read balance of %s: %e", a, err)

			continue
		}

		if b.Sign() > 0 {
			log.Printf("Reconciler found stranded balance %s at %s, re-triggering settlement", b.String(), a)
			s.trigger(common.HexToAddress(a))
		}
	}
}
