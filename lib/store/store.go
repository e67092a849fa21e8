// Package store defines the interface for database implementations to the relay service.
package store

import (
	"context"
	"errors"
)

// DB defines required methods for the mapping registry and settlement records.
type DB interface {
	// mapping registry
	CreateMapping(ctx context.Context, m UserMapping) error
	MappingByUser(ctx context.Context, userAddress string) (UserMapping, error)
	MappingByDeposit(ctx context.Context, depositAddress string) (UserMapping, error)
	DepositAddresses(ctx context.Context) ([]string, error)
	// settlement records
	AddSettlement(ctx context.Context, r SettlementRecord) error
	Settlements(ctx context.Context, userAddress string) ([]SettlementRecord, error)
}

// Errors returned. ErrConflict signals a benign race on mapping creation: another writer holds
// the row, callers should re-fetch. ErrUnavailable is transient and worth a retry with backoff,
// ErrUnauthenticated requires re-establishing credentials first.
var (
	ErrNotFound        = errors.New("record was not found in store")
	ErrConflict        = errors.New("a mapping already exists for this address")
	ErrUnavailable     = errors.New("store is not available")
	ErrUnauthenticated = errors.New("store credentials rejected")
)
