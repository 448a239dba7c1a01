package catalog

import (
	"os"
	"strings"
)

// Runtime identifies the protocol family a network speaks.
type Runtime string

const (
	RuntimeEVM       Runtime = "evm"
	RuntimeCosmos    Runtime = "cosmos"
	RuntimeSubstrate Runtime = "substrate"
	RuntimeBitcoin   Runtime = "bitcoin"
	RuntimeSolana    Runtime = "solana"
	RuntimeMoveVM    Runtime = "movevm"
	RuntimeStarknet  Runtime = "starknet"
	RuntimeOther     Runtime = "other"
)

// Category classifies a network for reporting purposes only; the engine never
// branches on it.
type Category string

const (
	CategoryLayer1      Category = "layer1"
	CategoryLayer2      Category = "layer2"
	CategorySidechain   Category = "sidechain"
	CategoryCosmos      Category = "cosmos"
	CategoryPolkadot    Category = "polkadot"
	CategoryAlternative Category = "alternative"
	CategorySpecialized Category = "specialized"
)

// Descriptor is the identity and sync policy for one network.
type Descriptor struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	ChainID     uint64   `yaml:"chain_id,omitempty"`
	Runtime     Runtime  `yaml:"runtime"`
	Category    Category `yaml:"category"`
	RPCURL      string   `yaml:"rpc_url,omitempty"`
	ExplorerURL string   `yaml:"explorer_url,omitempty"`
	Priority    int      `yaml:"priority"`
	Enabled     bool     `yaml:"enabled"`
}

// defaultEthereumRPC is the only hardcoded endpoint fallback; every other
// network must resolve via config or RPC_URL_<KEY>.
const defaultEthereumRPC = "http://localhost:8545"

// EnvKey returns the environment variable name carrying this network's
// endpoint override, e.g. "polygon_pos" -> "RPC_URL_POLYGON_POS".
func (d Descriptor) EnvKey() string {
	key := strings.ToUpper(d.Key)
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	return "RPC_URL_" + key
}

// ResolveEndpoint picks the RPC endpoint for this network: explicit descriptor
// value, then the RPC_URL_<KEY> override, then (for ethereum only) the
// ETHEREUM_NODE_URL / localhost fallback. An empty result means the network
// cannot be scheduled.
func (d Descriptor) ResolveEndpoint() string {
	if d.RPCURL != "" {
		return d.RPCURL
	}
	if v := os.Getenv(d.EnvKey()); v != "" {
		return v
	}
	if d.Key == "ethereum" {
		if v := os.Getenv("ETHEREUM_NODE_URL"); v != "" {
			return v
		}
		return defaultEthereumRPC
	}
	return ""
}
