package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/tarancss/drb/issuer"
	"github.com/tarancss/drb/lib/store"
)

// Errors returned to client requests.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNoUser     = errors.New("undefined user address - missing query: ?userAddress=<address>")
	ErrUnmapped   = errors.New("user does not have a deposit address")
	ErrNoBalance  = errors.New("balance reads not available")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// status maps core errors to http status codes: malformed input is the client's fault, a missing
// mapping is 404 and anything else is a store or node failure.
func status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, issuer.ErrInvalidAddress), errors.Is(err, ErrBadRequest), errors.Is(err, ErrNoUser):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrUnmapped):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// mappingReply is the client view of a user mapping. The custodial key never leaves the service.
type mappingReply struct {
	DepositAddress string `json:"depositAddress"`
	UserAddress    string `json:"userAddress"`
}

// homeHandler just replies a welcome message to the client.
func (rl *Relay) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body = "Hello, this is your deposit relay!"
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// createRequest is the body of a create-deposit-address request.
type createRequest struct {
	UserAddress string `json:"userAddress"`
}

// createHandler issues a deposit address for the requested user. Issuing is idempotent, repeating
// the request replies the already assigned address.
func (rl *Relay) createHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var m store.UserMapping

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(status(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(mappingReply{DepositAddress: m.DepositAddress, UserAddress: m.UserAddress})
			res.Body = string(tmp)
		}
		// log request and deposit address
		log.Printf("httpreq from %v %s deposit:%s err:%e\n", r.RemoteAddr, r.RequestURI, m.DepositAddress, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	// get request
	var req createRequest
	if errDec := json.NewDecoder(r.Body).Decode(&req); errDec != nil || req.UserAddress == "" {
		err = ErrBadRequest

		return
	}

	m, err = rl.iss.Issue(r.Context(), req.UserAddress)
}

// getHandler replies the deposit address already issued for the queried user, or 404.
func (rl *Relay) getHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var m store.UserMapping

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(status(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(mappingReply{DepositAddress: m.DepositAddress, UserAddress: m.UserAddress})
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s deposit:%s err:%e\n", r.RemoteAddr, r.RequestURI, m.DepositAddress, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	user, errQ := userQuery(r)
	if errQ != nil {
		err = errQ

		return
	}

	m, err = rl.db.MappingByUser(r.Context(), user)
	if errors.Is(err, store.ErrNotFound) {
		err = ErrUnmapped
	}
}

// cacheDump is the diagnostic view of store contents vs cache contents.
type cacheDump struct {
	Database struct {
		Total     int      `json:"total"`
		Addresses []string `json:"addresses"`
	} `json:"database"`
	Cache struct {
		Total     int      `json:"total"`
		Addresses []string `json:"addresses"`
	} `json:"cache"`
}

// cachedHandler replies the deposit addresses known to the store next to those in the cache, so
// an operator can spot divergence.
func (rl *Relay) cachedHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var dump cacheDump

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(status(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(dump)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s stored:%d cached:%d err:%e\n", r.RemoteAddr, r.RequestURI,
			dump.Database.Total, dump.Cache.Total, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var addrs []string

	if addrs, err = rl.db.DepositAddresses(r.Context()); err != nil {
		return
	}

	dump.Database.Total = len(addrs)
	dump.Database.Addresses = addrs
	dump.Cache.Addresses = rl.cache.Addresses()
	dump.Cache.Total = len(dump.Cache.Addresses)
}

// refreshHandler forces a cache rebuild from the store and replies the new cache size.
func (rl *Relay) refreshHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var size int

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(status(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			res.Body = fmt.Sprintf(`{"cacheSize":%d}`, size)
		}
		// log request
		log.Printf("httpreq from %v %s size:%d err:%e\n", r.RemoteAddr, r.RequestURI, size, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	size, err = rl.cache.Rebuild(r.Context())
}

// balanceHandler replies the source-token balance currently sitting at the queried user's
// custodial deposit address.
func (rl *Relay) balanceHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var bal string

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(status(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			res.Body = fmt.Sprintf(`{"balance":%q}`, bal)
		}
		// log request
		log.Printf("httpreq from %v %s bal:%s err:%e\n", r.RemoteAddr, r.RequestURI, bal, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	if rl.bal == nil {
		err = ErrNoBalance

		return
	}

	user, errQ := userQuery(r)
	if errQ != nil {
		err = errQ

		return
	}

	m, errFind := rl.db.MappingByUser(r.Context(), user)
	if errors.Is(errFind, store.ErrNotFound) {
		err = ErrUnmapped

		return
	}

	if errFind != nil {
		err = errFind

		return
	}

	b, errBal := rl.bal.TokenBalance(m.DepositAddress)
	if errBal != nil {
		err = errBal

		return
	}

	bal = b.String()
}

// settlementsHandler replies settlement records, optionally filtered to one user.
func (rl *Relay) settlementsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var recs []store.SettlementRecord

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(status(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(recs)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s recs:%d err:%e\n", r.RemoteAddr, r.RequestURI, len(recs), err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	if errP := r.ParseForm(); errP != nil {
		err = ErrBadRequest

		return
	}

	user := ""
	if tmp, ok := r.Form["userAddress"]; ok {
		user = strings.ToLower(tmp[0])
	}

	recs, err = rl.db.Settlements(r.Context(), user)
}

// userQuery extracts and normalizes the userAddress query parameter.
func userQuery(r *http.Request) (string, error) {
	if err := r.ParseForm(); err != nil {
		return "", ErrBadRequest
	}

	tmp, ok := r.Form["userAddress"]
	if !ok || len(tmp) != 1 || tmp[0] == "" {
		return "", ErrNoUser
	}

	return strings.ToLower(tmp[0]), nil // keep everything in lowercase to avoid issues
}
