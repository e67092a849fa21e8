// Package mem implements the store interface in process memory. It backs the "mem" dbtype for
// local runs and is the store fake used throughout the test suites.
package mem

import (
	"context"
	"sync"

	"github.com/tarancss/drb/lib/store"
)

// Mem holds all records in maps guarded by one mutex. The zero value is not usable, call New.
type Mem struct {
	mu          sync.Mutex
	byUser      map[string]store.UserMapping
	byDeposit   map[string]store.UserMapping
	order       []string // deposit addresses in insertion order
	settlements []store.SettlementRecord
	lookups     int
	fail        error
}

// New returns an empty in-memory store.
func New() *Mem {
	return &Mem{
		byUser:    make(map[string]store.UserMapping),
		byDeposit: make(map[string]store.UserMapping),
	}
}

// Fail makes every subsequent operation return err until called again with nil. Used in tests to
// simulate an unavailable store.
func (m *Mem) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Lookups returns how many deposit-address resolutions have hit the store. The monitor tests use
// it to prove that cache misses never reach the store.
func (m *Mem) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lookups
}

// Delete removes the mapping for a deposit address. Only used by tests to force a cache/store
// disagreement.
func (m *Mem) Delete(depositAddress string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if um, ok := m.byDeposit[depositAddress]; ok {
		delete(m.byDeposit, depositAddress)
		delete(m.byUser, um.UserAddress)
	}
}

func (m *Mem) CreateMapping(ctx context.Context, um store.UserMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return m.fail
	}

	if _, ok := m.byUser[um.UserAddress]; ok {
		return store.ErrConflict
	}

	if _, ok := m.byDeposit[um.DepositAddress]; ok {
		return store.ErrConflict
	}

	m.byUser[um.UserAddress] = um
	m.byDeposit[um.DepositAddress] = um
	m.order = append(m.order, um.DepositAddress)

	return nil
}

func (m *Mem) MappingByUser(ctx context.Context, userAddress string) (store.UserMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return store.UserMapping{}, m.fail
	}

	um, ok := m.byUser[userAddress]
	if !ok {
		return store.UserMapping{}, store.ErrNotFound
	}

	return um, nil
}

func (m *Mem) MappingByDeposit(ctx context.Context, depositAddress string) (store.UserMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++

	if m.fail != nil {
		return store.UserMapping{}, m.fail
	}

	um, ok := m.byDeposit[depositAddress]
	if !ok {
		return store.UserMapping{}, store.ErrNotFound
	}

	return um, nil
}

func (m *Mem) DepositAddresses(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return nil, m.fail
	}

	addrs := make([]string, 0, len(m.order))
	for _, a := range m.order {
		if _, ok := m.byDeposit[a]; ok {
			addrs = append(addrs, a)
		}
	}

	return addrs, nil
}

func (m *Mem) AddSettlement(ctx context.Context, r store.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return m.fail
	}

	m.settlements = append(m.settlements, r)

	return nil
}

func (m *Mem) Settlements(ctx context.Context, userAddress string) ([]store.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return nil, m.fail
	}

	recs := []store.SettlementRecord{}

	for _, r := range m.settlements {
		if userAddress == "" || r.UserAddress == userAddress {
			recs = append(recs, r)
		}
	}

	return recs, nil
}
