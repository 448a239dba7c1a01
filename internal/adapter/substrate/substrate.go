// Package substrate implements the chain adapter for Substrate/Polkadot
// runtimes over the node's JSON-RPC HTTP interface (chain_getHeader,
// chain_getBlockHash, chain_getBlock).
package substrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devblac/chainsyncd/internal/adapter"
	"github.com/devblac/chainsyncd/internal/catalog"
)

// Adapter fetches and normalizes blocks from one Substrate network.
type Adapter struct {
	network string
	rpcURL  string
	client  *http.Client
}

// New builds a Substrate adapter for the given network key and JSON-RPC URL.
func New(network, rpcURL string, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		network: network,
		rpcURL:  rpcURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Runtime() catalog.Runtime { return catalog.RuntimeSubstrate }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type header struct {
	Number     string `json:"number"`
	ParentHash string `json:"parentHash"`
}

type signedBlock struct {
	Block struct {
		Header     header   `json:"header"`
		Extrinsics []string `json:"extrinsics"`
	} `json:"block"`
}

// TipHeight queries chain_getHeader without arguments for the head block.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	var head header
	if err := a.call(ctx, "chain_getHeader", nil, &head); err != nil {
		return 0, err
	}
	return parseHexNumber("chain_getHeader", head.Number)
}

// FetchBlock resolves the block hash for a height and fetches the full block.
func (a *Adapter) FetchBlock(ctx context.Context, height uint64) (*adapter.NormalizedBlock, error) {
	var hash *string
	if err := a.call(ctx, "chain_getBlockHash", []any{height}, &hash); err != nil {
		return nil, err
	}
	if hash == nil || *hash == "" {
		return nil, &adapter.NotFoundError{Height: height}
	}

	var blk signedBlock
	if err := a.call(ctx, "chain_getBlock", []any{*hash}, &blk); err != nil {
		return nil, err
	}
	if blk.Block.Header.Number == "" {
		return nil, &adapter.NotFoundError{Height: height}
	}

	txs := make([]adapter.NormalizedTransaction, 0, len(blk.Block.Extrinsics))
	for i, ext := range blk.Block.Extrinsics {
		txs = append(txs, adapter.NormalizedTransaction{
			Raw: map[string]any{
				"index": i,
				"bytes": ext,
			},
		})
	}

	return &adapter.NormalizedBlock{
		Network:      a.network,
		Height:       height,
		Hash:         *hash,
		Timestamp:    time.Now().UTC(),
		Transactions: txs,
		RuntimeSpecific: map[string]any{
			"parent_hash":      blk.Block.Header.ParentHash,
			"extrinsics_count": len(blk.Block.Extrinsics),
		},
	}, nil
}

func (a *Adapter) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return &adapter.ProtocolError{Op: method, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.rpcURL, bytes.NewReader(body))
	if err != nil {
		return &adapter.TransportError{Op: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return &adapter.TransportError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &adapter.TransportError{Op: method, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return &adapter.ProtocolError{Op: method, Err: fmt.Errorf("decode response: %w", err)}
	}
	if rpcResp.Error != nil {
		return &adapter.ProtocolError{Op: method, Err: fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return &adapter.ProtocolError{Op: method, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

func parseHexNumber(op, hex string) (uint64, error) {
	s := strings.TrimPrefix(hex, "0x")
	if s == "" {
		return 0, &adapter.ProtocolError{Op: op, Err: fmt.Errorf("empty block number")}
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, &adapter.ProtocolError{Op: op, Err: fmt.Errorf("parse block number %q: %w", hex, err)}
	}
	return n, nil
}
