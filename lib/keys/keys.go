// Package keys generates custodial keypairs for deposit addresses.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarancss/hd"
)

// Key source types selectable via config.
const (
	RANDOM string = "random"
	HD     string = "hd"
)

var ErrUnknownSource = errors.New("unknown key source type")

// Source produces a fresh keypair per call: the account address and its hex-encoded private key.
// Generation must never repeat an address, that is the whole custody model.
type Source interface {
	NewKey() (common.Address, string, error)
}

// Random draws each keypair from the operating system's entropy source.
type Random struct{}

func (Random) NewKey() (common.Address, string, error) {
	k, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, "", fmt.Errorf("cannot generate keypair: %w", err)
	}

	return crypto.PubkeyToAddress(k.PublicKey), "0x" + hex.EncodeToString(crypto.FromECDSA(k)), nil
}

// HDSource derives child keys from a single seed, one index per issued address. The next index
// is process local: start it at the store's current mapping count and run a single issuing
// instance, or two relays sharing the seed would derive the same child.
type HDSource struct {
	hdw  *hd.HdWallet
	next uint32
}

// NewHD builds an HD key source from a hex seed, deriving from child index 'start'.
func NewHD(seedHex string, start uint32) (*HDSource, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("cannot decode HD seed: %w", err)
	}

	hdw, err := hd.Init(seed)
	if err != nil {
		return nil, fmt.Errorf("cannot initialise HD wallet: %w", err)
	}

	return &HDSource{hdw: hdw, next: start}, nil
}

func (s *HDSource) NewKey() (common.Address, string, error) {
	id := atomic.AddUint32(&s.next, 1) - 1

	addr, key, _, err := s.hdw.Address(0, hd.External, id)
	if err != nil {
		return common.Address{}, "", fmt.Errorf("cannot derive HD address %d: %w", id, err)
	}

	return common.BytesToAddress(addr), "0x" + hex.EncodeToString(key), nil
}

// New returns the key source for the configured type.
func New(source, seedHex string, start uint32) (Source, error) {
	switch source {
	case RANDOM:
		return Random{}, nil
	case HD:
		return NewHD(seedHex, start)
	}

	return nil, ErrUnknownSource
}
