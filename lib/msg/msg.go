// Package msg defines the interface for different message brokers.
//
// The relay publishes two kinds of events: a deposit event when a transfer into a monitored
// custodial address is observed, and a settlement event when the resulting sweep completes or
// fails. Payment gateways or front-ends consume these for real-time notification; nothing in the
// relay itself depends on them being delivered.
package msg

// DepositEvent is published when a monitored deposit address receives the source token.
type DepositEvent struct {
	Net            string `json:"net"`
	UserAddress    string `json:"userAddress"`
	DepositAddress string `json:"depositAddress"`
	Amount         string `json:"amount"`
	TxHash         string `json:"txHash"`
	Block          uint64 `json:"block"`
}

// SettlementEvent is published after a settlement attempt.
type SettlementEvent struct {
	Net            string `json:"net"`
	UserAddress    string `json:"userAddress"`
	DepositAddress string `json:"depositAddress"`
	AmountIn       string `json:"amountIn"`
	AmountOut      string `json:"amountOut,omitempty"`
	TxHash         string `json:"txHash,omitempty"`
	Outcome        string `json:"outcome"`
}

type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	SendDeposit(e DepositEvent) error
	SendSettlement(e SettlementEvent) error
}
