package chains

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the layout of a chain file:
//
//	chains:
//	  - id: 1
//	    name: Ethereum
//	    rpc_url: https://cloudflare-eth.com
//	  - id: 8453
//	    name: Base
//	    rpc_url: https://mainnet.base.org
type fileConfig struct {
	Chains []Chain `yaml:"chains"`
}

// Load reads the supported chain set from a YAML file. An empty path yields
// the default set.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chain file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing chain file: %w", err)
	}

	set, err := NewSet(cfg.Chains...)
	if err != nil {
		return nil, fmt.Errorf("invalid chain file %s: %w", path, err)
	}
	return set, nil
}
