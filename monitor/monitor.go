// Package monitor implements the chain event monitor. It subscribes to the source token's
// transfer events, filters them through the deposit address cache and dispatches settlements.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/lib/chain"
	"github.com/tarancss/drb/lib/msg"
	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/monitor/addrcache"
	"github.com/tarancss/drb/settle"
)

// Monitor states.
const (
	STOPPED int = iota
	SUBSCRIBING
	LISTENING
)

// ErrNotStopped is returned by Start when the monitor is already running.
var ErrNotStopped = errors.New("monitor already started")

// Monitor consumes the transfer event stream. Each deposit-address match is settled on its own
// goroutine so a slow or stuck settlement never delays event consumption or fills the
// subscription's delivery buffer; at most one sweep runs per deposit address at a time, a second
// deposit arriving mid-sweep is folded into a later sweep of the full balance.
type Monitor struct {
	net   string
	db    store.DB
	cache *addrcache.Cache
	watch chain.Watcher
	exec  settle.Executor
	mb    msg.MsgBroker // optional, may be nil

	mu     sync.Mutex
	state  int
	ctx    context.Context
	cancel context.CancelFunc
	sub    chain.Subscription
	wg     sync.WaitGroup // in-flight settlements

	busyMu sync.Mutex
	busy   map[common.Address]bool // in-flight sweeps; true when a deposit arrived mid-sweep

	m *metrics
}

// New returns a monitor. net is a label used in logs and published events.
func New(net string, db store.DB, cache *addrcache.Cache, watch chain.Watcher, exec settle.Executor,
	mb msg.MsgBroker) *Monitor {
	return &Monitor{
		net:   net,
		db:    db,
		cache: cache,
		watch: watch,
		exec:  exec,
		mb:    mb,
		busy:  make(map[common.Address]bool),
		m:     defaultMetrics(),
	}
}

// State returns the current monitor state.
func (m *Monitor) State() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Start rebuilds the address cache from the store, then opens the transfer subscription and
// begins listening. It returns without blocking once the subscription is acknowledged.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != STOPPED {
		return ErrNotStopped
	}
	m.state = SUBSCRIBING

	n, err := m.cache.Rebuild(ctx)
	if err != nil {
		m.state = STOPPED

		return fmt.Errorf("monitor: cannot build address cache: %w", err)
	}

	log.Printf("[%s] Monitoring %d deposit addresses", m.net, n)

	runCtx, cancel := context.WithCancel(context.Background())
	sink := make(chan chain.Transfer, 256)

	sub, err := m.watch.SubscribeTransfers(runCtx, sink)
	if err != nil {
		cancel()
		m.state = STOPPED

		return fmt.Errorf("monitor: cannot subscribe: %w", err)
	}

	m.ctx, m.cancel, m.sub = runCtx, cancel, sub
	m.state = LISTENING

	go m.listen(runCtx, sub, sink)

	return nil
}

// Stop cancels the subscription and waits for in-flight settlements to finish: a broadcast
// transaction is irrevocable, aborting the wait would only lose its outcome. Safe to call even if
// Start never completed.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, sub := m.cancel, m.sub
	m.cancel, m.sub = nil, nil
	m.state = STOPPED
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}

	if cancel != nil {
		cancel()
	}

	m.wg.Wait()

	log.Printf("[%s] Monitor stopped", m.net)
}

func (m *Monitor) listen(ctx context.Context, sub chain.Subscription, sink <-chan chain.Transfer) {
	log.Printf("[%s] Listening to transfer events", m.net)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Printf("[%s] Subscription failed: %e", m.net, err)
			}

			m.mu.Lock()
			if m.state == LISTENING {
				m.state = STOPPED
			}
			m.mu.Unlock()

			return
		case ev := <-sink:
			m.m.seen.Inc()

			if !m.cache.Contains(ev.To) {
				m.m.discarded.Inc()

				continue
			}

			m.m.matched.Inc()

			m.dispatch(func() { m.sweep(ev.To, &ev) })
		}
	}
}

// Trigger dispatches a settlement for the deposit address as if a transfer event had just
// arrived. The reconciler uses it to re-sweep balances the event stream missed.
func (m *Monitor) Trigger(deposit common.Address) {
	if !m.cache.Contains(deposit) {
		return
	}

	m.dispatch(func() { m.sweep(deposit, nil) })
}

// dispatch runs f on its own goroutine tracked by the in-flight group. The state check and the
// Add share the mutex Stop flips state under, so nothing joins the group once Stop has begun
// waiting on it.
func (m *Monitor) dispatch(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != LISTENING {
		return
	}

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		f()
	}()
}

// sweep claims the deposit address and settles it, then runs one follow-up sweep for every
// deposit that arrived while a sweep held the claim. A loser of the claim owes nothing: the
// holder picks the deposit up in its follow-up.
func (m *Monitor) sweep(deposit common.Address, ev *chain.Transfer) {
	if !m.claim(deposit) {
		if ev != nil {
			log.Printf("[%s] Sweep in progress for %s, folding deposit %s", m.net, deposit.Hex(), ev.TxHash.Hex())
		}

		return
	}

	m.settleDeposit(deposit, ev)

	for m.release(deposit) {
		log.Printf("[%s] Deposit arrived mid-sweep, re-sweeping %s", m.net, deposit.Hex())
		m.settleDeposit(deposit, nil)
	}
}

// settleDeposit resolves the mapping and runs one settlement. It deliberately does not use the
// monitor's run context: once dispatched, a settlement finishes on its own deadline even if the
// monitor is stopping.
func (m *Monitor) settleDeposit(deposit common.Address, ev *chain.Transfer) {
	ctx := context.Background()

	um, err := m.db.MappingByDeposit(ctx, strings.ToLower(deposit.Hex()))
	if errors.Is(err, store.ErrNotFound) {
		// cache staleness race: the cache knew an address the store no longer holds
		log.Printf("[%s] No mapping in store for cached address %s, discarding", m.net, deposit.Hex())

		return
	}

	if err != nil {
		log.Printf("[%s] Cannot resolve mapping for %s: %e", m.net, deposit.Hex(), err)

		return
	}

	if ev != nil {
		log.Printf("[%s] Deposit of %s into %s (user %s) tx:%s block:%d", m.net, ev.Value.String(),
			um.DepositAddress, um.UserAddress, ev.TxHash.Hex(), ev.Block)

		if m.mb != nil {
			if errSend := m.mb.SendDeposit(msg.DepositEvent{
				Net:            m.net,
				UserAddress:    um.UserAddress,
				DepositAddress: um.DepositAddress,
				Amount:         ev.Value.String(),
				TxHash:         ev.TxHash.Hex(),
				Block:          ev.Block,
			}); errSend != nil {
				log.Printf("[%s] Error publishing deposit event: %e", m.net, errSend)
			}
		}
	}

	rec, err := m.exec.Settle(ctx, um.Key, common.HexToAddress(um.UserAddress))

	se := msg.SettlementEvent{
		Net:            m.net,
		UserAddress:    um.UserAddress,
		DepositAddress: um.DepositAddress,
	}

	switch {
	case errors.Is(err, settle.ErrNothingToSettle):
		// an earlier sweep drained the balance, benign
		log.Printf("[%s] Nothing to settle at %s", m.net, um.DepositAddress)

		return
	case err != nil:
		// funds remain at the custodial address, a later sweep of the live balance recovers them
		m.m.failed.Inc()
		log.Printf("[%s] Settlement for %s failed: %e", m.net, um.DepositAddress, err)

		se.Outcome = store.SettleFailed
	default:
		m.m.settled.Inc()
		log.Printf("[%s] Settled %s from %s to user %s, tx:%s out:%s", m.net, rec.AmountIn.String(),
			um.DepositAddress, um.UserAddress, rec.TxHash.Hex(), rec.AmountOut.String())

		se.Outcome = store.SettleOK
		se.AmountIn = rec.AmountIn.String()
		se.AmountOut = rec.AmountOut.String()
		se.TxHash = rec.TxHash.Hex()
	}

	if m.mb != nil {
		if errSend := m.mb.SendSettlement(se); errSend != nil {
			log.Printf("[%s] Error publishing settlement event: %e", m.net, errSend)
		}
	}
}

// claim takes the per-address sweep slot. A failed claim marks the slot pending so the holder
// runs a follow-up sweep: the new deposit may have landed after the running sweep read its
// balance, and with no follow-up nothing else would ever sweep it.
func (m *Monitor) claim(a common.Address) bool {
	m.busyMu.Lock()
	defer m.busyMu.Unlock()

	if _, ok := m.busy[a]; ok {
		m.busy[a] = true

		return false
	}

	m.busy[a] = false

	return true
}

// release reports whether a follow-up sweep is owed. If so the claim is kept (pending cleared),
// otherwise the slot is freed.
func (m *Monitor) release(a common.Address) bool {
	m.busyMu.Lock()
	defer m.busyMu.Unlock()

	if m.busy[a] {
		m.busy[a] = false

		return true
	}

	delete(m.busy, a)

	return false
}
