package store

import "time"

// UserMapping ties a user's own address to the custodial deposit address issued for it. One
// mapping per user address, one user per deposit address, immutable once created. Key is the
// hex-encoded custodial private key controlling DepositAddress; it never leaves the
// issuer/executor boundary.
type UserMapping struct {
	UserAddress    string    `json:"userAddress" bson:"userAddress"`
	DepositAddress string    `json:"depositAddress" bson:"depositAddress"`
	Key            string    `json:"-" bson:"key"`
	Created        time.Time `json:"created" bson:"created"`
}

// Settlement outcomes.
const (
	SettleOK     = "succeeded"
	SettleFailed = "failed"
)

// SettlementRecord is written once per settlement attempt and never updated. Amounts are decimal
// strings of the raw token units. Step names the failed stage when Outcome is SettleFailed.
type SettlementRecord struct {
	DepositAddress string    `json:"depositAddress" bson:"depositAddress"`
	UserAddress    string    `json:"userAddress" bson:"userAddress"`
	AmountIn       string    `json:"amountIn" bson:"amountIn"`
	AmountOut      string    `json:"amountOut,omitempty" bson:"amountOut,omitempty"`
	TxHash         string    `json:"txHash,omitempty" bson:"txHash,omitempty"`
	Outcome        string    `json:"outcome" bson:"outcome"`
	Step           string    `json:"step,omitempty" bson:"step,omitempty"`
	Created        time.Time `json:"created" bson:"created"`
}
