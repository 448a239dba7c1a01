package cosmos

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devblac/chainsyncd/internal/adapter"
)

func newTestNode(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("cosmoshub", srv.URL, 5*time.Second), srv
}

func TestTipHeight(t *testing.T) {
	a, _ := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"result":{"sync_info":{"latest_block_height":"21504321"}}}`)
	})

	h, err := a.TipHeight(context.Background())
	if err != nil {
		t.Fatalf("tip: %v", err)
	}
	if h != 21504321 {
		t.Fatalf("tip = %d, want 21504321", h)
	}
}

func TestTipHeightBadPayload(t *testing.T) {
	a, _ := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"sync_info":{"latest_block_height":"not-a-number"}}}`)
	})

	_, err := a.TipHeight(context.Background())
	var perr *adapter.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want ProtocolError", err)
	}
}

func TestFetchBlockNormalizes(t *testing.T) {
	rawTx := base64.StdEncoding.EncodeToString([]byte("signed-tx-bytes"))
	a, _ := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/block_results"):
			fmt.Fprint(w, `{"result":{"txs_results":[{"code":0,"gas_wanted":"200000","gas_used":"123456","log":"ok"}]}}`)
		case strings.HasPrefix(r.URL.Path, "/block"):
			fmt.Fprintf(w, `{"result":{
				"block_id":{"hash":"ABCDEF0102"},
				"block":{
					"header":{"height":"100","time":"2024-03-01T12:00:00Z","proposer_address":"PROP1","chain_id":"cosmoshub-4"},
					"data":{"txs":[%q]}
				}}}`, rawTx)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	blk, err := a.FetchBlock(context.Background(), 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if blk.Network != "cosmoshub" || blk.Height != 100 || blk.Hash != "ABCDEF0102" {
		t.Fatalf("unexpected block identity: %+v", blk)
	}
	if len(blk.Transactions) != 1 {
		t.Fatalf("tx count = %d", len(blk.Transactions))
	}

	sum := sha256.Sum256([]byte("signed-tx-bytes"))
	wantHash := strings.ToUpper(hex.EncodeToString(sum[:]))
	tx := blk.Transactions[0]
	if tx.Hash != wantHash {
		t.Fatalf("tx hash = %s, want %s", tx.Hash, wantHash)
	}
	if tx.GasUsed != 123456 {
		t.Fatalf("gas used = %d", tx.GasUsed)
	}
	if blk.RuntimeSpecific["chain_id"] != "cosmoshub-4" {
		t.Fatalf("runtime specific: %+v", blk.RuntimeSpecific)
	}
}

func TestFetchBlockFutureHeightIsNotFound(t *testing.T) {
	a, _ := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":-32603,"message":"Internal error","data":"height 999 must be less than or equal to the current blockchain height 100"}}`)
	})

	_, err := a.FetchBlock(context.Background(), 999)
	if !adapter.IsNotFound(err) {
		t.Fatalf("error = %v, want not-found", err)
	}
}

func TestFetchBlockServerErrorIsTransport(t *testing.T) {
	a, _ := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	})

	_, err := a.FetchBlock(context.Background(), 1)
	var terr *adapter.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want TransportError", err)
	}
}
