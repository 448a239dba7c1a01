package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/chainsyncd/internal/catalog"
	"github.com/devblac/chainsyncd/internal/config"
)

const defaultHTTPTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		cat, err := catalog.Load(cfg.Global.NetworksFile)
		if err != nil {
			return fmt.Errorf("catalog invalid: %w", err)
		}
		fmt.Fprintf(out, "catalog OK (%d networks)\n", cat.Len())

		client := &http.Client{Timeout: defaultHTTPTimeout}
		failures := 0

		for name, eco := range cfg.Ecosystems {
			if !eco.SyncEnabled {
				continue
			}
			for _, key := range eco.Networks {
				desc, found := cat.Get(key)
				if !found {
					failures++
					fmt.Fprintf(out, "- %s (%s): unknown network\n", key, name)
					continue
				}
				endpoint := desc.ResolveEndpoint()
				if endpoint == "" {
					fmt.Fprintf(out, "- %s (%s): no endpoint (set %s), will be skipped\n", key, name, desc.EnvKey())
					continue
				}

				var detail string
				var pingErr error
				switch desc.Runtime {
				case catalog.RuntimeEVM:
					detail, pingErr = pingEVM(cmd.Context(), client, endpoint)
				case catalog.RuntimeCosmos:
					detail, pingErr = pingCosmos(cmd.Context(), client, endpoint)
				case catalog.RuntimeSubstrate:
					detail, pingErr = pingSubstrate(cmd.Context(), client, endpoint)
				default:
					fmt.Fprintf(out, "- %s (%s): runtime %s not syncable, will be skipped\n", key, name, desc.Runtime)
					continue
				}
				if pingErr != nil {
					failures++
					fmt.Fprintf(out, "- %s (%s): ERROR %v\n", key, name, pingErr)
					continue
				}
				fmt.Fprintf(out, "- %s (%s): %s OK\n", key, name, detail)
			}
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d network(s) failed connectivity", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingEVM(ctx context.Context, client *http.Client, url string) (string, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_chainId",
		"params":  []any{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call eth_chainId: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}

	if rpcResp.Error != nil {
		return "", fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("empty chainId result")
	}

	return "chainId " + rpcResp.Result, nil
}

func pingCosmos(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	url := strings.TrimRight(baseURL, "/") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var body struct {
		Result struct {
			NodeInfo struct {
				Network string `json:"network"`
			} `json:"node_info"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if body.Result.NodeInfo.Network == "" {
		return "", fmt.Errorf("missing network in status")
	}
	return "chain " + body.Result.NodeInfo.Network, nil
}

func pingSubstrate(ctx context.Context, client *http.Client, url string) (string, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "system_chain",
		"params":  []any{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call system_chain: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("empty chain result")
	}
	return "chain " + rpcResp.Result, nil
}
