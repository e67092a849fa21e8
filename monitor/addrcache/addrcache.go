// Package addrcache keeps the process-local set of all known deposit addresses. The monitor tests
// every chain event against it, so membership must be a lock-free O(1) read: the set is held in an
// atomic.Value and replaced wholesale, never mutated in place.
package addrcache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/lib/store"
)

type set map[common.Address]struct{}

// Cache is a derived structure, rebuildable at any time from the store. It may lag the store by
// one refresh cycle but never contains an address the store does not know.
type Cache struct {
	db store.DB
	v  atomic.Value // set
	mu sync.Mutex   // serializes Rebuild and Add against each other
}

// New returns an empty cache backed by db. Call Rebuild before serving events.
func New(db store.DB) *Cache {
	c := &Cache{db: db}
	c.v.Store(set{})

	return c
}

// Contains reports membership without touching the store.
func (c *Cache) Contains(a common.Address) bool {
	_, ok := c.v.Load().(set)[a]

	return ok
}

// Add registers one deposit address. The issuer calls this synchronously after a successful store
// write, so the address is filterable before its first deposit can be observed on chain.
func (c *Cache) Add(a common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.v.Load().(set)

	next := make(set, len(old)+1)
	for k := range old {
		next[k] = struct{}{}
	}
	next[a] = struct{}{}

	c.v.Store(next)
}

// Rebuild fetches the full address list from the store and atomically replaces the cache
// contents, returning the new size. On error the previous contents stay in place: serving stale
// entries is recoverable, dropping entries would silently ignore deposits.
//
// The store fetch happens under mu: an Add landing between the fetch and the swap would otherwise
// be erased by the stale snapshot. Rebuilds are rare, briefly blocking Add is fine.
func (c *Cache) Rebuild(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addrs, err := c.db.DepositAddresses(ctx)
	if err != nil {
		return c.Size(), err
	}

	next := make(set, len(addrs))
	for _, a := range addrs {
		next[common.HexToAddress(a)] = struct{}{}
	}

	c.v.Store(next)

	return len(next), nil
}

// Size returns the number of cached addresses.
func (c *Cache) Size() int {
	return len(c.v.Load().(set))
}

// Addresses returns the cached addresses in lowercase hex, sorted. Diagnostic use only.
func (c *Cache) Addresses() []string {
	s := c.v.Load().(set)

	addrs := make([]string, 0, len(s))
	for a := range s {
		addrs = append(addrs, strings.ToLower(a.Hex()))
	}

	sort.Strings(addrs)

	return addrs
}
