// Package connector keeps the registry of wallet connectors the user can pick
// from, along with the display metadata shown next to each.
package connector

import (
	"github.com/big14way/wagmi-project/pkg/provider"
)

// Kind is the transport family of a connector.
type Kind string

const (
	// KindInjected talks to a wallet running next to the app
	KindInjected Kind = "injected"
	// KindRelay pairs with a remote wallet through a relay bridge
	KindRelay Kind = "relay"
)

// Connector is one way of reaching a wallet.
type Connector struct {
	// ID is unique within a registry and is what sessions reference
	ID string

	// Name is shown to the user; empty means use the wallet display name
	Name string

	Kind Kind

	// Wallet tags the concrete wallet product for display lookup
	Wallet WalletTag

	// Ready is true when the wallet can be used right now. It is refreshed
	// from the provider by Registry.Refresh.
	Ready bool

	Provider provider.Provider
}

// DisplayName returns the connector's name, falling back to its wallet's.
func (c Connector) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return DisplayFor(c.Wallet).Name
}
