// Package relay implements the deposit-relay HTTP service.
//
// This service exposes a RESTful API for payment gateways to create and query deposit addresses,
// plus diagnostic endpoints for cache and settlement operability.
package relay

import (
	"context"
	"log"
	"math/big"
	"net/http"

	"github.com/tarancss/drb/issuer"
	"github.com/tarancss/drb/lib/msg"
	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/lib/store/db"
	"github.com/tarancss/drb/monitor/addrcache"
)

// BalanceReader reads the source-token balance of an account for the diagnostic endpoint.
type BalanceReader interface {
	TokenBalance(account string) (*big.Int, error)
}

// Relay contains the data necessary to deliver the service
type Relay struct {
	dbtype string
	db     store.DB         // db connection
	cache  *addrcache.Cache // deposit address cache
	iss    *issuer.Issuer   // deposit address issuer
	bal    BalanceReader    // live balance reads, may be nil
	mb     msg.MsgBroker    // may be nil
	s      *http.Server     // http server
	ss     *http.Server     // https server
	sc     chan struct{}    // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Relay service
func New(dbtype string, dbConn store.DB, cache *addrcache.Cache, iss *issuer.Issuer,
	bal BalanceReader, mb msg.MsgBroker) *Relay {
	return &Relay{
		dbtype: dbtype,
		db:     dbConn,
		cache:  cache,
		iss:    iss,
		bal:    bal,
		mb:     mb,
	}
}

// Stop shuts down the http servers implementing the RESTful API and closes gracefully the
// connections to the message broker and database.
func (r *Relay) Stop() {
	var err error
	// shutdown http server
	if r.s != nil {
		if err = r.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}
	if r.ss != nil {
		if err = r.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}
	close(r.sc) // close server channels to indicate shutdowns have finished
	// close message broker
	if r.mb != nil {
		if err = r.mb.Close(); err != nil {
			log.Printf("Error closing message broker:%e", err)
		}
	}
	// close database
	if r.db != nil {
		err = db.Close(r.dbtype, r.db)
		log.Printf("Disconnecting %v database, err:%e\n", r.dbtype, err)
	}
}
