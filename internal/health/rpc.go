package health

import (
	"context"
	"fmt"

	"github.com/devblac/chainsyncd/internal/adapter"
)

// RPCChecker pings the RPC endpoints of all scheduled networks.
type RPCChecker struct {
	adapters map[string]adapter.Adapter
}

// NewRPCChecker creates a checker over the scheduled network adapters.
func NewRPCChecker(adapters map[string]adapter.Adapter) *RPCChecker {
	return &RPCChecker{adapters: adapters}
}

// Ping queries every adapter's tip height and returns the last failure seen.
func (c *RPCChecker) Ping(ctx context.Context) error {
	var lastErr error
	for key, a := range c.adapters {
		if _, err := a.TipHeight(ctx); err != nil {
			lastErr = fmt.Errorf("network %s: %w", key, err)
			continue
		}
	}
	return lastErr
}
