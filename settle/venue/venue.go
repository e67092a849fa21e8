// Package venue builds the configured settlement executor. The venue choice is a deployment
// decision, everything upstream depends only on settle.Executor.
package venue

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/lib/config"
	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/settle"
	"github.com/tarancss/drb/settle/router"
	"github.com/tarancss/drb/settle/uniswap"
)

// Venue types.
const (
	ROUTER  string = "router"
	UNISWAP string = "uniswap"
)

var ErrUnknownVenue = errors.New("unknown settlement venue type")

// New returns the configured settlement executor, wrapped with settlement-record persistence.
func New(cfg config.VenueConfig, ch settle.Chain, db store.DB, token, target common.Address,
	slippageBps int64, wait time.Duration) (settle.Executor, error) {
	var (
		exec settle.Executor
		err  error
	)

	switch cfg.Type {
	case ROUTER:
		exec, err = router.New(ch, token, common.HexToAddress(cfg.Address), slippageBps, wait)
	case UNISWAP:
		exec, err = uniswap.New(ch, token, target, common.HexToAddress(cfg.Address), cfg.PoolFee,
			slippageBps, wait)
	default:
		return nil, ErrUnknownVenue
	}

	if err != nil {
		return nil, err
	}

	return settle.WithRecords(exec, db), nil
}
