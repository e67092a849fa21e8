// Package main: deposit relay service.
//
// The relay runs the HTTP API, the chain event monitor and the optional balance reconciler in one
// process, sharing the database connection and the deposit address cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tarancss/drb/issuer"
	"github.com/tarancss/drb/lib/chain/ethereum"
	"github.com/tarancss/drb/lib/config"
	"github.com/tarancss/drb/lib/keys"
	"github.com/tarancss/drb/lib/msg"
	"github.com/tarancss/drb/lib/msg/amqp"
	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/lib/store/db"
	"github.com/tarancss/drb/monitor"
	"github.com/tarancss/drb/monitor/addrcache"
	"github.com/tarancss/drb/reconcile"
	"github.com/tarancss/drb/relay"
	"github.com/tarancss/drb/settle/venue"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	mon := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	// connect to database
	var dbConn store.DB

	if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
		panic(err)
	}

	log.Printf("Connected to database:%+v\n", conf.DBConn)

	token := common.HexToAddress(conf.Token)
	target := common.HexToAddress(conf.Target)

	// connect to the blockchain node
	eth, err := ethereum.Init(conf.Node, conf.ChainID, token)
	if err != nil {
		panic(err)
	}
	defer eth.Close()

	log.Print("Blockchain client loaded")

	// load Prometheus monitor
	if *mon {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}
	case "":
		log.Print("No message broker configured, events will only be logged")
	default:
		log.Printf("Unknown message broker type: %s\n", conf.MbType)
	}

	// load custodial key source. The HD source derives from the next free child index.
	start := 0

	if conf.KeySource == keys.HD {
		addrs, errList := dbConn.DepositAddresses(context.Background())
		if errList != nil {
			panic(errList)
		}

		start = len(addrs)
	}

	src, err := keys.New(conf.KeySource, conf.Seed, uint32(start))
	if err != nil {
		panic(err)
	}

	// assemble the core: cache, issuer, settlement executor and monitor
	cache := addrcache.New(dbConn)
	iss := issuer.New(dbConn, cache, src)

	exec, err := venue.New(conf.Venue, eth, dbConn, token, target, conf.SlippageBps,
		time.Duration(conf.ConfirmWait)*time.Second)
	if err != nil {
		panic(err)
	}

	net := fmt.Sprintf("chain-%d", conf.ChainID)

	m := monitor.New(net, dbConn, cache, eth, exec, mb)
	if err = m.Start(context.Background()); err != nil {
		panic(err)
	}

	// balance reads for reconciliation and diagnostics over plain JSON-RPC
	balances, err := reconcile.NewEthBalances(conf.RPC, conf.Secret, conf.Token)
	if err != nil {
		log.Printf("Balance reads not available: %v", err)

		balances = nil
	} else {
		defer balances.Close()
	}

	// launch the reconciliation sweeper
	rctx, rcancel := context.WithCancel(context.Background())
	defer rcancel()

	if conf.Reconcile > 0 && balances != nil {
		sweeper := reconcile.New(dbConn, balances, m.Trigger, time.Duration(conf.Reconcile)*time.Second)
		go sweeper.Run(rctx)
	}

	// create relay service
	var bal relay.BalanceReader
	if balances != nil {
		bal = balances
	}

	rl := relay.New(conf.DBType, dbConn, cache, iss, bal, mb)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		rcancel()
		m.Stop()
		rl.Stop()
		close(finish)
	}()

	// init RESTful API, wait for its return and log response
	log.Printf("Relay: %s\n", rl.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}
