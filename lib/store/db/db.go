// Package db implements the opening and graceful closing of database connections.
package db

import (
	"errors"

	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/lib/store/mem"
	"github.com/tarancss/drb/lib/store/mongo"
	"github.com/tarancss/drb/lib/store/postgres"
)

const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
	MEMORY   string = "mem"
)

var ErrUnknownDBType = errors.New("unknown dbtype")

// New returns a new database connection according to the options (database type).
func New(options, connection string) (store.DB, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	case MEMORY:
		return mem.New(), nil
	}

	return nil, ErrUnknownDBType
}

// Close gracefully closes the database connection.
func Close(options string, dh store.DB) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case POSTGRES:
		return dh.(*postgres.Postgres).ClosePostgres()
	}

	return nil
}
