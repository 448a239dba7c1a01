// Package stub holds placeholder adapters for runtimes the catalog knows
// about but the service cannot decode yet (Bitcoin, Solana, Move-VM,
// Starknet). They exist so the orchestrator can report these networks as
// known-but-unsupported instead of unknown.
package stub

import (
	"context"

	"github.com/devblac/chainsyncd/internal/adapter"
	"github.com/devblac/chainsyncd/internal/catalog"
)

// Adapter rejects every call with ErrUnsupported.
type Adapter struct {
	runtime catalog.Runtime
}

// New builds a stub for the given runtime family.
func New(runtime catalog.Runtime) *Adapter {
	return &Adapter{runtime: runtime}
}

func (a *Adapter) Runtime() catalog.Runtime { return a.runtime }

func (a *Adapter) TipHeight(context.Context) (uint64, error) {
	return 0, adapter.ErrUnsupported
}

func (a *Adapter) FetchBlock(context.Context, uint64) (*adapter.NormalizedBlock, error) {
	return nil, adapter.ErrUnsupported
}
