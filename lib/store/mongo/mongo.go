// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/drb/lib/store"
)

const database = "drb"

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// New returns a Mongo client connection to the specified MongoDB database uri. The unique indexes
// on userAddress and depositAddress are declared here: they are the enforcement point for the
// one-mapping-per-user invariant when several relay instances race on creation.
func New(uri string) (*Mongo, error) {
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	m := &Mongo{c: c}

	_, err = m.mappings().Indexes().CreateMany(ctx, []mgo.IndexModel{
		{Keys: bson.D{{Key: "userAddress", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "depositAddress", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating mapping indexes: %w", err)
	}

	return m, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func (m *Mongo) mappings() *mgo.Collection {
	return m.c.Database(database).Collection("mappings")
}

func (m *Mongo) settlements() *mgo.Collection {
	return m.c.Database(database).Collection("settlements")
}

// CreateMapping inserts a new user mapping. A duplicate on either the user or the deposit address
// surfaces as store.ErrConflict so the caller can re-fetch the winner's row.
func (m *Mongo) CreateMapping(ctx context.Context, um store.UserMapping) error {
	_, err := m.mappings().InsertOne(ctx, um)
	if err != nil {
		if isDup(err) {
			return store.ErrConflict
		}

		return fmt.Errorf("could not insert mapping in db: %w", err)
	}

	return nil
}

// MappingByUser returns the mapping for the given user address or store.ErrNotFound.
func (m *Mongo) MappingByUser(ctx context.Context, userAddress string) (store.UserMapping, error) {
	return m.findOne(ctx, bson.M{"userAddress": userAddress})
}

// MappingByDeposit returns the mapping for the given deposit address or store.ErrNotFound.
func (m *Mongo) MappingByDeposit(ctx context.Context, depositAddress string) (store.UserMapping, error) {
	return m.findOne(ctx, bson.M{"depositAddress": depositAddress})
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (store.UserMapping, error) {
	var um store.UserMapping

	err := m.mappings().FindOne(ctx, filter).Decode(&um)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return um, store.ErrNotFound
	}

	if err != nil {
		return um, fmt.Errorf("could not get mapping from db: %w", err)
	}

	return um, nil
}

// DepositAddresses returns every deposit address known to the store. Used to rebuild the
// in-memory filtering cache.
func (m *Mongo) DepositAddresses(ctx context.Context) ([]string, error) {
	cur, err := m.mappings().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("could not list mappings from db: %w", err)
	}
	defer cur.Close(ctx)

	addrs := []string{}

	for cur.Next(ctx) {
		var um store.UserMapping
		if err = bson.Unmarshal(cur.Current, &um); err != nil {
			return nil, fmt.Errorf("could not decode mapping from db: %w", err)
		}

		addrs = append(addrs, um.DepositAddress)
	}

	return addrs, cur.Err()
}

// AddSettlement saves a settlement record.
func (m *Mongo) AddSettlement(ctx context.Context, r store.SettlementRecord) error {
	if _, err := m.settlements().InsertOne(ctx, r); err != nil {
		return fmt.Errorf("could not insert settlement in db: %w", err)
	}

	return nil
}

// Settlements returns the settlement records for the given user address, or all records when
// userAddress is empty.
func (m *Mongo) Settlements(ctx context.Context, userAddress string) ([]store.SettlementRecord, error) {
	filter := bson.M{}
	if userAddress != "" {
		filter["userAddress"] = userAddress
	}

	cur, err := m.settlements().Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("could not list settlements from db: %w", err)
	}
	defer cur.Close(ctx)

	recs := []store.SettlementRecord{}

	for cur.Next(ctx) {
		var r store.SettlementRecord
		if err = bson.Unmarshal(cur.Current, &r); err != nil {
			return nil, fmt.Errorf("could not decode settlement from db: %w", err)
		}

		recs = append(recs, r)
	}

	return recs, cur.Err()
}

// isDup reports whether err is a mongo unique index violation (code 11000).
func isDup(err error) bool {
	var we mgo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}

	return false
}
