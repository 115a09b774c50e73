// Package chains holds the fixed set of blockchain networks a session may use.
// The set is loaded once at startup and never changes afterwards.
package chains

import (
	"fmt"
)

// Chain describes a supported network.
type Chain struct {
	// ID is the EIP-155 chain identifier
	ID int64 `yaml:"id"`

	// Name is the human readable network name
	Name string `yaml:"name"`

	// RPCURL is the public endpoint used for read-only queries
	RPCURL string `yaml:"rpc_url"`

	// NativeSymbol is the ticker of the native currency
	NativeSymbol string `yaml:"native_symbol"`

	// ExplorerURL is the block explorer base URL
	ExplorerURL string `yaml:"explorer_url"`

	// Icon is the display icon path
	Icon string `yaml:"icon"`

	// Testnet marks networks without real value
	Testnet bool `yaml:"testnet"`
}

// Set is an immutable, ordered collection of chains keyed by ID.
type Set struct {
	chains []Chain
	byID   map[int64]int
}

// Well-known chain IDs
const (
	Mainnet int64 = 1
	Sepolia int64 = 11155111
	Polygon int64 = 137
	Base    int64 = 8453
)

// DefaultChains returns the networks offered when no chain file is configured.
func DefaultChains() []Chain {
	return []Chain{
		{
			ID:           Mainnet,
			Name:         "Ethereum",
			RPCURL:       "https://cloudflare-eth.com",
			NativeSymbol: "ETH",
			ExplorerURL:  "https://etherscan.io",
			Icon:         "/ethereum.svg",
		},
		{
			ID:           Sepolia,
			Name:         "Sepolia",
			RPCURL:       "https://rpc.sepolia.org",
			NativeSymbol: "ETH",
			ExplorerURL:  "https://sepolia.etherscan.io",
			Icon:         "/ethereum.svg",
			Testnet:      true,
		},
		{
			ID:           Polygon,
			Name:         "Polygon",
			RPCURL:       "https://polygon-rpc.com",
			NativeSymbol: "POL",
			ExplorerURL:  "https://polygonscan.com",
			Icon:         "/polygon.svg",
		},
		{
			ID:           Base,
			Name:         "Base",
			RPCURL:       "https://mainnet.base.org",
			NativeSymbol: "ETH",
			ExplorerURL:  "https://basescan.org",
			Icon:         "/base.svg",
		},
	}
}

// Default returns the default chain set.
func Default() *Set {
	set, err := NewSet(DefaultChains()...)
	if err != nil {
		panic(err)
	}
	return set
}

// NewSet builds a set, rejecting non-positive and duplicate chain IDs.
func NewSet(chains ...Chain) (*Set, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("at least one chain is required")
	}

	set := &Set{
		chains: make([]Chain, 0, len(chains)),
		byID:   make(map[int64]int, len(chains)),
	}
	for _, c := range chains {
		if c.ID <= 0 {
			return nil, fmt.Errorf("chain %q: id must be positive, got %d", c.Name, c.ID)
		}
		if _, exists := set.byID[c.ID]; exists {
			return nil, fmt.Errorf("chain %d configured more than once", c.ID)
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("Chain %d", c.ID)
		}
		set.byID[c.ID] = len(set.chains)
		set.chains = append(set.chains, c)
	}
	return set, nil
}

// Find returns the chain with the given ID.
func (s *Set) Find(id int64) (Chain, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Chain{}, false
	}
	return s.chains[i], true
}

// Contains reports whether id is a supported chain.
func (s *Set) Contains(id int64) bool {
	_, ok := s.byID[id]
	return ok
}

// List returns the chains in configured order.
func (s *Set) List() []Chain {
	out := make([]Chain, len(s.chains))
	copy(out, s.chains)
	return out
}

// IDs returns the chain IDs in configured order.
func (s *Set) IDs() []int64 {
	ids := make([]int64, len(s.chains))
	for i, c := range s.chains {
		ids[i] = c.ID
	}
	return ids
}

// Name returns the display name for id, falling back to "Chain <id>" for
// networks outside the set (a wallet may sit on any chain).
func (s *Set) Name(id int64) string {
	if c, ok := s.Find(id); ok {
		return c.Name
	}
	return fmt.Sprintf("Chain %d", id)
}
