// Package cosmos implements the chain adapter for Cosmos-SDK runtimes over
// the Tendermint RPC HTTP interface (/status, /block, /block_results).
package cosmos

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devblac/chainsyncd/internal/adapter"
	"github.com/devblac/chainsyncd/internal/catalog"
)

// Adapter fetches and normalizes blocks from one Cosmos-SDK network.
type Adapter struct {
	network string
	baseURL string
	client  *http.Client
}

// New builds a Cosmos adapter for the given network key and Tendermint RPC
// base URL.
func New(network, rpcURL string, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		network: network,
		baseURL: strings.TrimRight(rpcURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Runtime() catalog.Runtime { return catalog.RuntimeCosmos }

type statusResponse struct {
	Result struct {
		SyncInfo struct {
			LatestBlockHeight string `json:"latest_block_height"`
		} `json:"sync_info"`
	} `json:"result"`
}

type blockResponse struct {
	Result struct {
		BlockID struct {
			Hash string `json:"hash"`
		} `json:"block_id"`
		Block struct {
			Header struct {
				Height          string    `json:"height"`
				Time            time.Time `json:"time"`
				ProposerAddress string    `json:"proposer_address"`
				ChainID         string    `json:"chain_id"`
			} `json:"header"`
			Data struct {
				Txs []string `json:"txs"`
			} `json:"data"`
		} `json:"block"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

type blockResultsResponse struct {
	Result struct {
		TxsResults []struct {
			Code      uint32 `json:"code"`
			GasWanted string `json:"gas_wanted"`
			GasUsed   string `json:"gas_used"`
			Log       string `json:"log"`
		} `json:"txs_results"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// TipHeight queries /status for the node's latest block height.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	var status statusResponse
	if err := a.get(ctx, "/status", &status); err != nil {
		return 0, err
	}
	h, err := strconv.ParseUint(status.Result.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return 0, &adapter.ProtocolError{Op: "status", Err: fmt.Errorf("parse height %q: %w", status.Result.SyncInfo.LatestBlockHeight, err)}
	}
	return h, nil
}

// FetchBlock retrieves /block and /block_results for one height. Transaction
// hashes are the SHA-256 of the raw tx bytes, uppercase hex, matching how
// Tendermint derives them.
func (a *Adapter) FetchBlock(ctx context.Context, height uint64) (*adapter.NormalizedBlock, error) {
	var block blockResponse
	if err := a.get(ctx, fmt.Sprintf("/block?height=%d", height), &block); err != nil {
		return nil, err
	}
	if block.Error != nil {
		if strings.Contains(block.Error.Data, "must be less than or equal") ||
			strings.Contains(block.Error.Message, "height") {
			return nil, &adapter.NotFoundError{Height: height}
		}
		return nil, &adapter.ProtocolError{Op: "block", Err: fmt.Errorf("rpc error: %s", block.Error.Message)}
	}
	if block.Result.Block.Header.Height == "" {
		return nil, &adapter.NotFoundError{Height: height}
	}

	var results blockResultsResponse
	if err := a.get(ctx, fmt.Sprintf("/block_results?height=%d", height), &results); err != nil {
		return nil, err
	}

	txs := make([]adapter.NormalizedTransaction, 0, len(block.Result.Block.Data.Txs))
	for i, rawTx := range block.Result.Block.Data.Txs {
		nt := adapter.NormalizedTransaction{Hash: txHash(rawTx)}
		if i < len(results.Result.TxsResults) {
			res := results.Result.TxsResults[i]
			gasUsed, _ := strconv.ParseUint(res.GasUsed, 10, 64)
			nt.GasUsed = gasUsed
			nt.Raw = map[string]any{
				"code":       res.Code,
				"gas_wanted": res.GasWanted,
				"log":        res.Log,
			}
		}
		txs = append(txs, nt)
	}

	return &adapter.NormalizedBlock{
		Network:      a.network,
		Height:       height,
		Hash:         block.Result.BlockID.Hash,
		Timestamp:    block.Result.Block.Header.Time.UTC(),
		Transactions: txs,
		RuntimeSpecific: map[string]any{
			"chain_id": block.Result.Block.Header.ChainID,
			"proposer": block.Result.Block.Header.ProposerAddress,
		},
	}, nil
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return &adapter.TransportError{Op: path, Err: err}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &adapter.TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &adapter.TransportError{Op: path, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &adapter.ProtocolError{Op: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// txHash computes the Tendermint tx hash for a base64-encoded tx blob.
func txHash(b64 string) string {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
