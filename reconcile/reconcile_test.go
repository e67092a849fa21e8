package reconcile

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/drb/lib/store"
	"github.com/tarancss/drb/lib/store/mem"
)

// fakeBalances replies canned balances per account.
type fakeBalances struct {
	bals map[string]*big.Int
}

func (f *fakeBalances) TokenBalance(account string) (*big.Int, error) {
	if b, ok := f.bals[account]; ok {
		return new(big.Int).Set(b), nil
	}

	return big.NewInt(0), nil
}

func TestSweep(t *testing.T) {
	s := mem.New()
	ctx := context.Background()

	stranded := "0xaaaa111111111111111111111111111111111111"
	drained := "0xaaaa222222222222222222222222222222222222"

	for i, d := range []string{stranded, drained} {
		if err := s.CreateMapping(ctx, store.UserMapping{
			UserAddress:    []string{"0xcba1", "0xcba2"}[i],
			DepositAddress: d,
		}); err != nil {
			t.Fatalf("Error creating mapping:%e", err)
		}
	}

	bal := &fakeBalances{bals: map[string]*big.Int{stranded: big.NewInt(750)}}

	var mu sync.Mutex
	var triggered []common.Address
	trigger := func(a common.Address) {
		mu.Lock()
		triggered = append(triggered, a)
		mu.Unlock()
	}

	sw := New(s, bal, trigger, 10*time.Millisecond)

	rctx, cancel := context.WithCancel(ctx)
	go sw.Run(rctx)

	// let at least one sweep pass
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(triggered)
		mu.Unlock()
		if n > 0 {
			break
		}

		time.Sleep(10 * time.Millisecond)
	}

	cancel()

	mu.Lock()
	defer mu.Unlock()

	if len(triggered) == 0 {
		t.Fatalf("sweeper never triggered a settlement")
	}

	exp := common.HexToAddress(stranded)
	for _, a := range triggered {
		// only the address holding a balance is re-triggered
		if a != exp {
			t.Errorf("triggered %s expected only %s", a.Hex(), exp.Hex())
		}
	}
}
