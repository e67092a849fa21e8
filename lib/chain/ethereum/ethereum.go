// Implements the chain interfaces for ethereum networks
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tarancss/drb/lib/chain"
)

// transferTopic is keccak-256 of the canonical Transfer event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const receiptPoll = time.Second

// Ethereum implements a connection to an ethereum-type chain over websocket.
type Ethereum struct {
	c       *ethclient.Client
	chainID *big.Int
	token   common.Address
	erc20   abi.ABI
}

// Init connects to the node at 'node' and watches transfer events of the given token contract.
// chainID is required for replay-protected transaction signing.
func Init(node string, chainID int64, token common.Address) (*Ethereum, error) {
	c, err := ethclient.Dial(node)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to ethereum node in %s: %w", node, err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("cannot parse ERC20 abi: %w", err)
	}

	return &Ethereum{c: c, chainID: big.NewInt(chainID), token: token, erc20: parsed}, nil
}

// Close ends the connection
func (e *Ethereum) Close() {
	e.c.Close()
}

// SubscribeTransfers opens a log subscription filtered to the token's Transfer events and decodes
// each log into a chain.Transfer on sink. Decoding drops malformed logs rather than failing the
// stream. The forwarding routine ends when the context is cancelled or the subscription errors.
func (e *Ethereum) SubscribeTransfers(ctx context.Context, sink chan<- chain.Transfer) (chain.Subscription, error) {
	logs := make(chan gethtypes.Log, 256)

	q := ethereum.FilterQuery{
		Addresses: []common.Address{e.token},
		Topics:    [][]common.Hash{{transferTopic}},
	}

	sub, err := e.c.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to transfer events: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Err():
				return
			case lg := <-logs:
				t, ok := decodeTransfer(lg)
				if !ok {
					continue
				}

				select {
				case sink <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}

// decodeTransfer maps a raw log to a chain.Transfer. Transfer(address,address,uint256) carries
// from and to as indexed topics and the value in the data section.
func decodeTransfer(lg gethtypes.Log) (chain.Transfer, bool) {
	if len(lg.Topics) < 3 || lg.Topics[0] != transferTopic {
		return chain.Transfer{}, false
	}

	return chain.Transfer{
		From:     common.BytesToAddress(lg.Topics[1].Bytes()),
		To:       common.BytesToAddress(lg.Topics[2].Bytes()),
		Value:    new(big.Int).SetBytes(lg.Data),
		Block:    lg.BlockNumber,
		TxHash:   lg.TxHash,
		LogIndex: lg.Index,
	}, true
}

// TokenBalance returns the ERC20 balance of account.
func (e *Ethereum) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := e.erc20.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("cannot pack balanceOf: %w", err)
	}

	out, err := e.c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	res, err := e.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("cannot decode balanceOf result: %w", err)
	}

	bal, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", res[0])
	}

	return bal, nil
}

// SendCall signs a contract call with key and broadcasts it, returning the transaction hash.
func (e *Ethereum) SendCall(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, data []byte) (common.Hash, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := e.c.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot get nonce for %s: %w", from.Hex(), err)
	}

	price, err := e.c.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot get gas price: %w", err)
	}

	gas, err := e.c.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot estimate gas: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &to,
		Data:     data,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(e.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("cannot sign transaction: %w", err)
	}

	if err = e.c.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("cannot send transaction: %w", err)
	}

	return signed.Hash(), nil
}

// WaitMined polls for the receipt of hash until it lands or the context expires.
func (e *Ethereum) WaitMined(ctx context.Context, hash common.Hash) (uint64, error) {
	tick := time.NewTicker(receiptPoll)
	defer tick.Stop()

	for {
		r, err := e.c.TransactionReceipt(ctx, hash)
		if err == nil {
			return r.Status, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			return 0, fmt.Errorf("cannot get receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return 0, chain.ErrWaitTimeout
		case <-tick.C:
		}
	}
}
