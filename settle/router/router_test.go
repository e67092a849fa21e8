package router

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tarancss/drb/settle"
)

var (
	token      = common.HexToAddress("0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f")
	routerAddr = common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45")
	user       = common.HexToAddress("0xCBA75F167B03e34B8a572c50273C082401b073Ed")
)

type call struct {
	to   common.Address
	data []byte
}

// fakeChain records submitted calls and replies canned balances and receipt statuses.
type fakeChain struct {
	mu      sync.Mutex
	balance *big.Int
	balErr  error
	sendErr error
	status  []uint64 // receipt status per submitted call, in order
	calls   []call
}

func (f *fakeChain) TokenBalance(ctx context.Context, tok, account common.Address) (*big.Int, error) {
	if f.balErr != nil {
		return nil, f.balErr
	}

	return new(big.Int).Set(f.balance), nil
}

func (f *fakeChain) SendCall(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, data []byte) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{to: to, data: data})

	return common.BigToHash(big.NewInt(int64(len(f.calls)))), nil
}

func (f *fakeChain) WaitMined(ctx context.Context, hash common.Hash) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := int(hash.Big().Int64()) - 1
	if i < 0 || i >= len(f.status) {
		return 1, nil
	}

	return f.status[i], nil
}

func testKey(t *testing.T) string {
	t.Helper()

	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Error generating key:%e", err)
	}

	return "0x" + hex.EncodeToString(crypto.FromECDSA(k))
}

func TestSettle(t *testing.T) {
	ch := &fakeChain{balance: big.NewInt(1000000)}

	r, err := New(ch, token, routerAddr, 100, time.Second)
	if err != nil {
		t.Fatalf("Error creating router venue:%e", err)
	}

	rec, err := r.Settle(context.Background(), testKey(t), user)
	if err != nil {
		t.Fatalf("Error settling:%e", err)
	}

	// one approve on the token, then one swap on the router
	if len(ch.calls) != 2 {
		t.Fatalf("calls submitted:%d expected:2", len(ch.calls))
	}
	if ch.calls[0].to != token {
		t.Errorf("approve sent to %s expected token %s", ch.calls[0].to.Hex(), token.Hex())
	}
	if ch.calls[1].to != routerAddr {
		t.Errorf("swap sent to %s expected router %s", ch.calls[1].to.Hex(), routerAddr.Hex())
	}

	if rec.AmountIn.String() != "1000000" {
		t.Errorf("amount in:%s expected:1000000", rec.AmountIn.String())
	}
	if rec.AmountOut.String() != "990000" {
		t.Errorf("amount out:%s expected:990000", rec.AmountOut.String())
	}
	if rec.TxHash != common.BigToHash(big.NewInt(2)) {
		t.Errorf("receipt hash is not the swap transaction:%s", rec.TxHash.Hex())
	}

	// the swap calldata carries the swept amount, the minimum output and the user as recipient
	args, err := r.abi.Methods["swapToTarget"].Inputs.Unpack(ch.calls[1].data[4:])
	if err != nil {
		t.Fatalf("Error unpacking swap calldata:%e", err)
	}
	if args[0].(*big.Int).String() != "1000000" || args[1].(*big.Int).String() != "990000" {
		t.Errorf("swap amounts in calldata:%v", args)
	}
	if args[2].(common.Address) != user {
		t.Errorf("swap recipient:%s expected user %s", args[2].(common.Address).Hex(), user.Hex())
	}
}

// TestSettleTwice checks a second sweep right after a successful one is a benign no-op: the first
// drained the balance.
func TestSettleTwice(t *testing.T) {
	ch := &fakeChain{balance: big.NewInt(1000)}
	key := testKey(t)

	r, _ := New(ch, token, routerAddr, 100, time.Second)

	if _, err := r.Settle(context.Background(), key, user); err != nil {
		t.Fatalf("Error settling:%e", err)
	}

	ch.balance = big.NewInt(0)

	if _, err := r.Settle(context.Background(), key, user); !errors.Is(err, settle.ErrNothingToSettle) {
		t.Fatalf("expected ErrNothingToSettle on second sweep, got:%v", err)
	}
	if len(ch.calls) != 2 {
		t.Errorf("second sweep submitted calls:%d expected none beyond the first sweep's 2", len(ch.calls))
	}
}

func TestSettleNothingToSettle(t *testing.T) {
	ch := &fakeChain{balance: big.NewInt(0)}

	r, _ := New(ch, token, routerAddr, 100, time.Second)

	_, err := r.Settle(context.Background(), testKey(t), user)
	if !errors.Is(err, settle.ErrNothingToSettle) {
		t.Fatalf("expected ErrNothingToSettle, got:%v", err)
	}
	if len(ch.calls) != 0 {
		t.Errorf("calls submitted on empty balance:%d", len(ch.calls))
	}
}

func TestSettleSteps(t *testing.T) {
	cases := []struct {
		name string
		ch   *fakeChain
		key  string
		step string
	}{
		{"bad_key", &fakeChain{balance: big.NewInt(1)}, "0xzz", settle.StepKey},
		{"balance_read", &fakeChain{balErr: errors.New("node down")}, "", settle.StepBalance},
		{"approve_send", &fakeChain{balance: big.NewInt(1), sendErr: errors.New("underpriced")}, "", settle.StepApprove},
		{"approve_reverted", &fakeChain{balance: big.NewInt(1), status: []uint64{0}}, "", settle.StepApproveConfirm},
		{"swap_reverted", &fakeChain{balance: big.NewInt(1), status: []uint64{1, 0}}, "", settle.StepSwapConfirm},
	}

	for _, c := range cases {
		key := c.key
		if key == "" {
			key = testKey(t)
		}

		r, _ := New(c.ch, token, routerAddr, 100, time.Second)

		_, err := r.Settle(context.Background(), key, user)
		if err == nil {
			t.Errorf("[%s] expected settlement error", c.name)

			continue
		}

		var se *settle.Error
		if !errors.As(err, &se) || se.Step != c.step {
			t.Errorf("[%s] expected failure at step %s, got:%v", c.name, c.step, err)
		}
	}
}

// TestSettleRetryAfterFailure checks a failed sweep leaves funds claimable: the retry re-reads
// the live balance and sweeps the lot.
func TestSettleRetryAfterFailure(t *testing.T) {
	ch := &fakeChain{balance: big.NewInt(500), status: []uint64{1, 0}}
	key := testKey(t)

	r, _ := New(ch, token, routerAddr, 100, time.Second)

	if _, err := r.Settle(context.Background(), key, user); err == nil {
		t.Fatalf("expected first settlement to fail")
	}

	// a second deposit lands before the retry
	ch.balance = big.NewInt(800)
	ch.status = nil

	rec, err := r.Settle(context.Background(), key, user)
	if err != nil {
		t.Fatalf("Error settling on retry:%e", err)
	}
	if rec.AmountIn.String() != "800" {
		t.Errorf("retry swept:%s expected the full live balance:800", rec.AmountIn.String())
	}
}
