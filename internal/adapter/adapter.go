// Package adapter defines the capability interface the sync engine uses to
// talk to one blockchain runtime, together with the normalized block model
// every runtime decodes into.
package adapter

import (
	"context"
	"time"

	"github.com/devblac/chainsyncd/internal/catalog"
)

// Adapter answers the two questions the engine asks of a chain: how far has
// the remote node progressed, and what does height N look like once decoded.
//
// Implementations must be safe for concurrent use across networks. The engine
// never calls one Adapter instance concurrently with itself, so per-instance
// reentrancy is not required. Adapters never mutate engine state.
type Adapter interface {
	// Runtime identifies the protocol family this adapter speaks.
	Runtime() catalog.Runtime

	// TipHeight returns the most recent height known to the remote node.
	TipHeight(ctx context.Context) (uint64, error)

	// FetchBlock retrieves and normalizes one block. The returned block is
	// owned by the caller; the adapter holds no reference after returning.
	FetchBlock(ctx context.Context, height uint64) (*NormalizedBlock, error)
}

// NormalizedBlock is the runtime-agnostic shape handed to storage and the
// publisher. RuntimeSpecific carries whatever extra payload a family produces
// (L2 batch metadata, Cosmos validator sets, Substrate pallet details).
type NormalizedBlock struct {
	Network         string                  `json:"network"`
	Height          uint64                  `json:"height"`
	Hash            string                  `json:"hash"`
	Timestamp       time.Time               `json:"timestamp"`
	Transactions    []NormalizedTransaction `json:"transactions"`
	Events          []NormalizedEvent       `json:"events"`
	RuntimeSpecific map[string]any          `json:"runtime_specific,omitempty"`
}

// NormalizedTransaction is one transaction in a uniform shape.
type NormalizedTransaction struct {
	Hash     string         `json:"hash"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Value    string         `json:"value,omitempty"`
	GasUsed  uint64         `json:"gas_used,omitempty"`
	GasPrice string         `json:"gas_price,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// NormalizedEvent is one log/event emitted within a block.
type NormalizedEvent struct {
	TxHash  string         `json:"tx_hash,omitempty"`
	Address string         `json:"address,omitempty"`
	Topics  []string       `json:"topics,omitempty"`
	Data    string         `json:"data,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}
