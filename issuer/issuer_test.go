package issuer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/lib/store/mem"
	"github.com/tarancss/drb/monitor/addrcache"
)

// seqKeys is a deterministic key source handing out sequential addresses.
type seqKeys struct {
	n int
}

func (s *seqKeys) NewKey() (common.Address, string, error) {
	s.n++

	return common.HexToAddress(fmt.Sprintf("0x%040x", s.n)), fmt.Sprintf("0xkey%d", s.n), nil
}

func TestIssue(t *testing.T) {
	s := mem.New()
	c := addrcache.New(s)
	i := New(s, c, &seqKeys{})
	ctx := context.Background()

	user := "0xCBA75F167B03e34B8a572c50273C082401b073Ed"

	m, err := i.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Error issuing deposit address:%e", err)
	}
	if m.UserAddress != "0xcba75f167b03e34b8a572c50273c082401b073ed" {
		t.Errorf("user address not normalized:%s", m.UserAddress)
	}
	if m.DepositAddress == "" {
		t.Errorf("no deposit address issued")
	}
	if !c.Contains(common.HexToAddress(m.DepositAddress)) {
		t.Errorf("issued address %s not in cache", m.DepositAddress)
	}

	// issuing again for the same user must return the same deposit address, regardless of casing
	m2, err := i.Issue(ctx, "0xcba75f167b03e34b8a572c50273c082401b073ed")
	if err != nil {
		t.Fatalf("Error issuing deposit address again:%e", err)
	}
	if m2.DepositAddress != m.DepositAddress {
		t.Errorf("issue is not idempotent:%s expected:%s", m2.DepositAddress, m.DepositAddress)
	}

	// a different user gets a different deposit address
	m3, err := i.Issue(ctx, "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4")
	if err != nil {
		t.Fatalf("Error issuing deposit address:%e", err)
	}
	if m3.DepositAddress == m.DepositAddress {
		t.Errorf("two users share deposit address %s", m3.DepositAddress)
	}
}

func TestIssueInvalidAddress(t *testing.T) {
	s := mem.New()
	i := New(s, addrcache.New(s), &seqKeys{})

	cases := []string{"", "0x", "not-an-address", "0x123", "cba75F167B03e34B8a572c50273C082401b073"}
	for _, user := range cases {
		if _, err := i.Issue(context.Background(), user); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("[%s] expected ErrInvalidAddress, got:%v", user, err)
		}
	}
}

// racingStore simulates losing the creation race: the first CreateMapping returns a conflict
// after a concurrent winner inserted the row.
type racingStore struct {
	store.DB
	winner store.UserMapping
	raced  bool
}

func (r *racingStore) CreateMapping(ctx context.Context, um store.UserMapping) error {
	if !r.raced {
		r.raced = true
		// the concurrent winner got there first
		if err := r.DB.CreateMapping(ctx, r.winner); err != nil {
			return err
		}

		return store.ErrConflict
	}

	return r.DB.CreateMapping(ctx, um)
}

func TestIssueLosesRace(t *testing.T) {
	s := mem.New()
	user := "0xcba75f167b03e34b8a572c50273c082401b073ed"
	winner := store.UserMapping{
		UserAddress:    user,
		DepositAddress: "0x9999999999999999999999999999999999999999",
		Key:            "0xkeyw",
	}

	rs := &racingStore{DB: s, winner: winner}
	i := New(rs, addrcache.New(s), &seqKeys{})

	m, err := i.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Error issuing after lost race:%e", err)
	}
	if m.DepositAddress != winner.DepositAddress {
		t.Errorf("lost race must return the winner's mapping:%s expected:%s", m.DepositAddress, winner.DepositAddress)
	}
}

func TestIssueStoreUnavailable(t *testing.T) {
	s := mem.New()
	i := New(s, addrcache.New(s), &seqKeys{})

	s.Fail(store.ErrUnavailable)

	if _, err := i.Issue(context.Background(), "0xcba75F167B03e34B8a572c50273C082401b073Ed"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("expected store outage error, got:%v", err)
	}
}
