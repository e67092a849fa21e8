// Package issuer creates deposit addresses. Issue is idempotent per user: the first call
// generates a custodial keypair and registers the mapping, every later call returns the same
// deposit address.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/lib/keys"
	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/monitor/addrcache"
)

// ErrInvalidAddress is returned for malformed user addresses, before any store access.
var ErrInvalidAddress = errors.New("invalid account address")

// Issuer wires the key source, the mapping store and the address cache.
type Issuer struct {
	db    store.DB
	cache *addrcache.Cache
	keys  keys.Source
}

// New returns an Issuer.
func New(db store.DB, cache *addrcache.Cache, src keys.Source) *Issuer {
	return &Issuer{db: db, cache: cache, keys: src}
}

// Issue returns the mapping for userAddress, creating one if none exists. Two concurrent calls
// for the same fresh user cannot produce two mappings: the store's uniqueness constraint is the
// sole enforcement point, and a conflict there means someone else just created the row, so we
// re-fetch instead of failing.
func (i *Issuer) Issue(ctx context.Context, userAddress string) (store.UserMapping, error) {
	if !common.IsHexAddress(userAddress) {
		return store.UserMapping{}, ErrInvalidAddress
	}

	user := strings.ToLower(userAddress) // keep everything in lowercase to avoid issues

	m, err := i.db.MappingByUser(ctx, user)
	if err == nil {
		return m, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return store.UserMapping{}, fmt.Errorf("issuer: cannot check existing mapping: %w", err)
	}

	addr, key, err := i.keys.NewKey()
	if err != nil {
		return store.UserMapping{}, fmt.Errorf("issuer: %w", err)
	}

	m = store.UserMapping{
		UserAddress:    user,
		DepositAddress: strings.ToLower(addr.Hex()),
		Key:            key,
		Created:        time.Now().UTC(),
	}

	if err = i.db.CreateMapping(ctx, m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// lost the race, the winner's mapping is the one that counts
			return i.db.MappingByUser(ctx, user)
		}

		return store.UserMapping{}, fmt.Errorf("issuer: cannot persist mapping: %w", err)
	}

	// make the address filterable before its first deposit can appear on chain
	i.cache.Add(addr)

	return m, nil
}
