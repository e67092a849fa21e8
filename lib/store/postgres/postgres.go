// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/tarancss/drb/lib/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS mappings (
	user_address    TEXT PRIMARY KEY,
	deposit_address TEXT UNIQUE NOT NULL,
	private_key     TEXT NOT NULL,
	created         TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS settlements (
	id              SERIAL PRIMARY KEY,
	deposit_address TEXT NOT NULL,
	user_address    TEXT NOT NULL,
	amount_in       TEXT NOT NULL,
	amount_out      TEXT NOT NULL DEFAULT '',
	tx_hash         TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL,
	step            TEXT NOT NULL DEFAULT '',
	created         TIMESTAMPTZ NOT NULL
);`

// uniqueViolation is the postgres error code raised on unique constraint breaches. The primary
// key on user_address is the enforcement point for the one-mapping-per-user invariant.
const uniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' with the
// relay schema in place.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("cannot create relay schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// CreateMapping inserts a new user mapping, returning store.ErrConflict when another writer
// already holds either address.
func (p *Postgres) CreateMapping(ctx context.Context, m store.UserMapping) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO mappings (user_address, deposit_address, private_key, created) VALUES ($1, $2, $3, $4)`,
		m.UserAddress, m.DepositAddress, m.Key, m.Created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrConflict
		}

		return fmt.Errorf("could not insert mapping in db: %w", err)
	}

	return nil
}

// MappingByUser returns the mapping for the given user address or store.ErrNotFound.
func (p *Postgres) MappingByUser(ctx context.Context, userAddress string) (store.UserMapping, error) {
	return p.findOne(ctx, `SELECT user_address, deposit_address, private_key, created FROM mappings WHERE user_address = $1`, userAddress)
}

// MappingByDeposit returns the mapping for the given deposit address or store.ErrNotFound.
func (p *Postgres) MappingByDeposit(ctx context.Context, depositAddress string) (store.UserMapping, error) {
	return p.findOne(ctx, `SELECT user_address, deposit_address, private_key, created FROM mappings WHERE deposit_address = $1`, depositAddress)
}

func (p *Postgres) findOne(ctx context.Context, query, arg string) (store.UserMapping, error) {
	var m store.UserMapping

	err := p.db.QueryRowContext(ctx, query, arg).Scan(&m.UserAddress, &m.DepositAddress, &m.Key, &m.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return m, store.ErrNotFound
	}

	if err != nil {
		return m, fmt.Errorf("could not get mapping from db: %w", err)
	}

	return m, nil
}

// DepositAddresses returns every deposit address known to the store, ordered by creation.
func (p *Postgres) DepositAddresses(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT deposit_address FROM mappings ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("could not list mappings from db: %w", err)
	}
	defer rows.Close()

	addrs := []string{}

	for rows.Next() {
		var a string
		if err = rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("could not decode mapping from db: %w", err)
		}

		addrs = append(addrs, a)
	}

	return addrs, rows.Err()
}

// AddSettlement saves a settlement record.
func (p *Postgres) AddSettlement(ctx context.Context, r store.SettlementRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO settlements (deposit_address, user_address, amount_in, amount_out, tx_hash, outcome, step, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.DepositAddress, r.UserAddress, r.AmountIn, r.AmountOut, r.TxHash, r.Outcome, r.Step, r.Created)
	if err != nil {
		return fmt.Errorf("could not insert settlement in db: %w", err)
	}

	return nil
}

// Settlements returns the settlement records for the given user address, or all records when
// userAddress is empty.
func (p *Postgres) Settlements(ctx context.Context, userAddress string) ([]store.SettlementRecord, error) {
	query := `SELECT deposit_address, user_address, amount_in, amount_out, tx_hash, outcome, step, created
		  FROM settlements`
	args := []interface{}{}

	if userAddress != "" {
		query += ` WHERE user_address = $1`
		args = append(args, userAddress)
	}

	query += ` ORDER BY created`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list settlements from db: %w", err)
	}
	defer rows.Close()

	recs := []store.SettlementRecord{}

	for rows.Next() {
		var r store.SettlementRecord
		if err = rows.Scan(&r.DepositAddress, &r.UserAddress, &r.AmountIn, &r.AmountOut, &r.TxHash,
			&r.Outcome, &r.Step, &r.Created); err != nil {
			return nil, fmt.Errorf("could not decode settlement from db: %w", err)
		}

		recs = append(recs, r)
	}

	return recs, rows.Err()
}
