// Package drb and its sub-packages implement a custodial deposit-relay service: it issues a unique
// deposit address per end user, watches an ERC20 transfer event stream for deposits into those
// addresses and sweeps received funds into a target token, forwarding proceeds to the user's own
// address.
/*
drb runs as a single relay service (cmd/relay) with three cooperating parts:

1) an issuer that generates a fresh custodial keypair per user and registers the mapping
 user address <-> deposit address <-> custodial key in the store. Issuing is idempotent: repeated
 requests for the same user return the same deposit address.

2) a monitor that subscribes to the source token's Transfer events on the configured node and
 filters them through an in-memory set of all known deposit addresses, so the overwhelming
 majority of chain events are rejected without a store round-trip. On a match, the full mapping is
 resolved from the store and a settlement is dispatched on its own goroutine.

3) a settlement executor that sweeps the full source-token balance held at the custodial address,
 grants the venue a spending approval and executes the swap, sending proceeds directly to the
 user's address. The venue is pluggable (package settle/venue): a generic relay-router contract or
 a Uniswap-v3 style pool.

Architecture

Persistence is product agnostic (package lib/store) with MongoDB, PostgreSQL and in-memory
implementations, selected via the JSON config file at service startup. The store's uniqueness
constraint on the user address is the only cross-process coordination point; everything else is
immutable once written or local to the process.

Deposit and settlement events can optionally be published to a message broker (package lib/msg) so
payment gateways or front-ends get real-time notifications. The broker is implemented as a product
agnostic layer currently backed by AMQP.

A reconciliation sweeper (package reconcile) periodically re-reads the token balance of every
custodial address independent of the event stream and re-triggers settlement for any non-zero
balance, so a transient RPC or venue failure cannot strand funds: settlement always sweeps the
live balance, which makes a retry of the same sweep naturally idempotent.

The service exposes an HTTP RESTful API (package relay) to create and query deposit addresses and
a few diagnostic endpoints, and can be monitored via a Prometheus API by setting the flag "-m" at
startup.
*/
package drb
