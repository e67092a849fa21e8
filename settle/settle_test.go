package settle

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestMinOut(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		bps    int64
		exp    string
	}{
		{"one_percent", "1000000", 100, "990000"},
		{"half_percent", "1000000", 50, "995000"},
		{"zero_slippage", "1000000", 0, "1000000"},
		{"rounds_down", "999", 100, "989"},
		{"small_amount", "1", 100, "0"},
		{"zero_amount", "0", 100, "0"},
		{"large_amount", "123456789012345678901234567890", 100, "122222221122222222112222222111"},
	}

	for _, c := range cases {
		amount, _ := new(big.Int).SetString(c.amount, 10)

		got := MinOut(amount, c.bps)
		if got.String() != c.exp {
			t.Errorf("[%s] MinOut:%s expected:%s", c.name, got.String(), c.exp)
		}
		// the input amount must not be mutated
		if amount.String() != c.amount {
			t.Errorf("[%s] MinOut mutated its input:%s", c.name, amount.String())
		}
	}
}

func TestLoadKey(t *testing.T) {
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Error generating key:%e", err)
	}
	exp := crypto.PubkeyToAddress(k.PublicKey)
	key := "0x" + hex.EncodeToString(crypto.FromECDSA(k))

	pk, addr, err := LoadKey(key)
	if err != nil {
		t.Fatalf("Error loading key:%e", err)
	}
	if addr != exp {
		t.Errorf("loaded address:%s expected:%s", addr.Hex(), exp.Hex())
	}
	if pk == nil {
		t.Errorf("no private key returned")
	}

	// a malformed key fails at the key step
	if _, _, err = LoadKey("0xzz"); err == nil {
		t.Errorf("expected error loading malformed key")
	} else {
		var se *Error
		if !errors.As(err, &se) || se.Step != StepKey {
			t.Errorf("expected step %s failure, got:%v", StepKey, err)
		}
	}
}

func TestErrorStepAndUnwrap(t *testing.T) {
	cause := errors.New("node unreachable")
	err := Fail(StepSwapConfirm, cause)

	if !errors.Is(err, cause) {
		t.Errorf("settlement error does not unwrap to its cause")
	}

	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("error is not a settlement error:%v", err)
	}
	if se.Step != StepSwapConfirm {
		t.Errorf("step:%s expected:%s", se.Step, StepSwapConfirm)
	}
}
