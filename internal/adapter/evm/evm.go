// Package evm implements the chain adapter for EVM runtimes using
// go-ethereum's RPC client. One Adapter instance serves one network.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/devblac/chainsyncd/internal/adapter"
	"github.com/devblac/chainsyncd/internal/catalog"
)

// BlockClient captures the subset of ethclient used by the adapter.
type BlockClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// RPCClient is a thin wrapper over ethclient.Client that satisfies BlockClient.
type RPCClient struct {
	*ethclient.Client
}

// NewRPCClient builds an RPC client to an EVM node.
func NewRPCClient(rpcURL string) (*RPCClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}

// Adapter fetches and normalizes blocks from one EVM network.
type Adapter struct {
	network string
	client  BlockClient
	timeout time.Duration
}

// New builds an EVM adapter for the given network key.
func New(network string, client BlockClient, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{network: network, client: client, timeout: timeout}
}

func (a *Adapter) Runtime() catalog.Runtime { return catalog.RuntimeEVM }

// TipHeight returns the latest block number known to the node.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, &adapter.TransportError{Op: "latest header", Err: err}
	}
	if header == nil || header.Number == nil {
		return 0, &adapter.ProtocolError{Op: "latest header", Err: errors.New("missing block number")}
	}
	return header.Number.Uint64(), nil
}

// FetchBlock retrieves block height with full transactions, receipts, and logs.
func (a *Adapter) FetchBlock(ctx context.Context, height uint64) (*adapter.NormalizedBlock, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	num := new(big.Int).SetUint64(height)
	block, err := a.client.BlockByNumber(ctx, num)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, &adapter.NotFoundError{Height: height}
		}
		return nil, &adapter.TransportError{Op: fmt.Sprintf("block %d", height), Err: err}
	}
	if block == nil {
		return nil, &adapter.NotFoundError{Height: height}
	}

	signer := types.LatestSignerForChainID(nil)
	txs := make([]adapter.NormalizedTransaction, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		nt := adapter.NormalizedTransaction{
			Hash:  tx.Hash().Hex(),
			Value: tx.Value().String(),
		}
		if tx.To() != nil {
			nt.To = tx.To().Hex()
		}
		if tx.ChainId() != nil && tx.ChainId().Sign() > 0 {
			signer = types.LatestSignerForChainID(tx.ChainId())
		}
		if from, err := types.Sender(signer, tx); err == nil {
			nt.From = from.Hex()
		}
		if gp := tx.GasPrice(); gp != nil {
			nt.GasPrice = gp.String()
		}
		if receipt, err := a.client.TransactionReceipt(ctx, tx.Hash()); err == nil && receipt != nil {
			nt.GasUsed = receipt.GasUsed
		}
		txs = append(txs, nt)
	}

	logs, err := a.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: num,
		ToBlock:   num,
	})
	if err != nil {
		return nil, &adapter.TransportError{Op: fmt.Sprintf("logs %d", height), Err: err}
	}

	events := make([]adapter.NormalizedEvent, 0, len(logs))
	for _, lg := range logs {
		topics := make([]string, 0, len(lg.Topics))
		for _, t := range lg.Topics {
			topics = append(topics, t.Hex())
		}
		events = append(events, adapter.NormalizedEvent{
			TxHash:  lg.TxHash.Hex(),
			Address: lg.Address.Hex(),
			Topics:  topics,
			Data:    hexutil.Encode(lg.Data),
		})
	}

	return &adapter.NormalizedBlock{
		Network:      a.network,
		Height:       height,
		Hash:         block.Hash().Hex(),
		Timestamp:    time.Unix(int64(block.Time()), 0).UTC(),
		Transactions: txs,
		Events:       events,
		RuntimeSpecific: map[string]any{
			"gas_used":  block.GasUsed(),
			"gas_limit": block.GasLimit(),
			"base_fee":  bigString(block.BaseFee()),
		},
	}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
