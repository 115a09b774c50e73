package wallet

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	ens "github.com/wealdtech/go-ens/v3"
)

// ENSChainID is the chain ENS names are read from.
const ENSChainID int64 = 1

// ENSLookup is the pair of ENS queries needed to show a verified name.
type ENSLookup interface {
	// Reverse returns the primary name an address has set.
	Reverse(address common.Address) (string, error)
	// Forward returns the address a name points at.
	Forward(name string) (common.Address, error)
}

type ensBackend struct {
	backend bind.ContractBackend
}

// NewENSLookup queries the ENS registry through backend.
func NewENSLookup(backend bind.ContractBackend) ENSLookup {
	return &ensBackend{backend: backend}
}

func (e *ensBackend) Reverse(address common.Address) (string, error) {
	name, err := ens.ReverseResolve(e.backend, address)
	if err != nil && isNoResolution(err) {
		return "", nil
	}
	return name, err
}

func (e *ensBackend) Forward(name string) (common.Address, error) {
	return ens.Resolve(e.backend, name)
}

func isNoResolution(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no resolution") || strings.Contains(msg, "no resolver")
}

// NameResolver shows addresses by their ENS name. A name counts only when it
// resolves back to the same address; anything else reads as no name.
type NameResolver struct {
	lookup ENSLookup
	log    *logrus.Logger

	mu    sync.Mutex
	names map[common.Address]string
}

// NewNameResolver creates a resolver over lookup.
func NewNameResolver(lookup ENSLookup, log *logrus.Logger) *NameResolver {
	if log == nil {
		log = logrus.New()
	}
	return &NameResolver{
		lookup: lookup,
		log:    log,
		names:  make(map[common.Address]string),
	}
}

// Name returns the verified primary name of address, or "" when it has none.
func (r *NameResolver) Name(ctx context.Context, address string) (string, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return "", err
	}
	key := common.HexToAddress(addr)

	r.mu.Lock()
	name, ok := r.names[key]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err = r.lookup.Reverse(key)
	if err != nil {
		return "", NewWalletError(ErrCodeRPCError, "failed to look up ENS name", err, ENSChainID)
	}
	if name != "" {
		target, err := r.lookup.Forward(name)
		if err != nil || target != key {
			r.log.WithFields(logrus.Fields{
				"address": addr,
				"name":    name,
			}).Debug("Ignoring ENS name that does not resolve back to the address")
			name = ""
		}
	}

	r.mu.Lock()
	r.names[key] = name
	r.mu.Unlock()
	return name, nil
}

// Display returns the name of address, or its short form when it has none
// or the lookup fails.
func (r *NameResolver) Display(ctx context.Context, address string) string {
	name, err := r.Name(ctx, address)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Debug("ENS lookup failed")
	}
	if name != "" {
		return name
	}
	return ShortAddress(address)
}

// Names returns a resolver reading ENS from the mainnet connection.
func (c *Client) Names() (*NameResolver, error) {
	client, _, err := c.getClient(ENSChainID)
	if err != nil {
		return nil, err
	}
	return NewNameResolver(NewENSLookup(client), c.log), nil
}
