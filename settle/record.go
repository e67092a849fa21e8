package settle

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tarancss/drb/lib/store"
)

// recorded decorates an Executor with settlement-record persistence. One immutable record per
// attempt, success or failure; ErrNothingToSettle writes nothing because nothing was attempted.
type recorded struct {
	inner Executor
	db    store.DB
}

// WithRecords returns an Executor that persists the outcome of every settlement attempt to db.
func WithRecords(inner Executor, db store.DB) Executor {
	return &recorded{inner: inner, db: db}
}

func (r *recorded) Settle(ctx context.Context, key string, userAddress common.Address) (Receipt, error) {
	rec, err := r.inner.Settle(ctx, key, userAddress)

	if errors.Is(err, ErrNothingToSettle) {
		return rec, err
	}

	row := store.SettlementRecord{
		DepositAddress: depositAddress(key),
		UserAddress:    strings.ToLower(userAddress.Hex()),
		Created:        time.Now().UTC(),
	}

	if err == nil {
		row.Outcome = store.SettleOK
		row.AmountIn = rec.AmountIn.String()
		row.AmountOut = rec.AmountOut.String()
		row.TxHash = rec.TxHash.Hex()
	} else {
		row.Outcome = store.SettleFailed

		var se *Error
		if errors.As(err, &se) {
			row.Step = se.Step
		}
	}

	// recording is best effort: the funds outcome is already decided on chain
	if errSave := r.db.AddSettlement(ctx, row); errSave != nil {
		log.Printf("Error saving settlement record for %s: %e", row.DepositAddress, errSave)
	}

	return rec, err
}

// depositAddress derives the custodial address from its private key, empty on a malformed key.
func depositAddress(key string) string {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return ""
	}

	return strings.ToLower(crypto.PubkeyToAddress(k.PublicKey).Hex())
}
