package relay

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const timeout = 15

// Init sets up and starts the http/https server to service the RESTful API for the relay service.
// If sslPort, sslCert and sslKey are informed, it will start an https (TLS) server on the
// specified endpoint.
func (rl *Relay) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	// API definition
	r := mux.NewRouter()
	r.HandleFunc("/", rl.homeHandler)
	r.HandleFunc("/create-deposit-address", rl.createHandler).Methods("POST")        // issue a deposit address for a user
	r.HandleFunc("/get-deposit-address", rl.getHandler).Methods("GET")               // get a user's deposit address
	r.HandleFunc("/cached-monitoring-addresses", rl.cachedHandler).Methods("GET")    // diagnostic store vs cache dump
	r.HandleFunc("/refresh-cache", rl.refreshHandler).Methods("POST")                // force a cache rebuild
	r.HandleFunc("/deposit-balance", rl.balanceHandler).Methods("GET")               // live custodial balance
	r.HandleFunc("/settlements", rl.settlementsHandler).Methods("GET")               // settlement records
	http.Handle("/", r)

	// setup shutdown channel
	rl.sc = make(chan struct{})

	// start http server
	if port != "" {
		rl.s = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + port,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			err = rl.s.ListenAndServe()
		}()

		log.Printf("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		rl.ss = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + sslPort,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			errTLS = rl.ss.ListenAndServeTLS(sslCert, sslKey)
		}()

		log.Printf("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-rl.sc

	return fmt.Sprintf("shutdown http server:%e, https server:%e", err, errTLS)
}
