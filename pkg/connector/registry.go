package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/wallet"
)

// Registry holds the connectors known to the app in registration order.
type Registry struct {
	mu         sync.RWMutex
	connectors []Connector
	index      map[string]int
	log        *logrus.Logger
}

// NewRegistry creates a registry holding connectors.
func NewRegistry(logger *logrus.Logger, connectors ...Connector) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		index: make(map[string]int),
		log:   logger,
	}
	for _, c := range connectors {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends c. IDs must be unique.
func (r *Registry) Register(c Connector) error {
	if c.ID == "" {
		return fmt.Errorf("connector ID is required")
	}
	if c.Provider == nil {
		return fmt.Errorf("connector %q has no provider", c.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[c.ID]; exists {
		return fmt.Errorf("connector %q already registered", c.ID)
	}
	r.index[c.ID] = len(r.connectors)
	r.connectors = append(r.connectors, c)

	r.log.WithFields(logrus.Fields{
		"connector_id": c.ID,
		"kind":         c.Kind,
		"ready":        c.Ready,
	}).Debug("Registered connector")
	return nil
}

// List returns every connector in registration order.
func (r *Registry) List() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Connector(nil), r.connectors...)
}

// Ready returns the connectors currently usable, in registration order.
func (r *Registry) Ready() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ready := make([]Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		if c.Ready {
			ready = append(ready, c)
		}
	}
	return ready
}

// Find looks up a connector by ID.
func (r *Registry) Find(id string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Connector{}, wallet.NewWalletError(wallet.ErrCodeConnectorNotFound,
			fmt.Sprintf("no connector with ID %q", id), nil, 0)
	}
	return r.connectors[i], nil
}

// Refresh asks every provider whether it is available and updates Ready.
// Providers are probed without holding the registry lock.
func (r *Registry) Refresh(ctx context.Context) {
	for _, c := range r.List() {
		ready := c.Provider.Available(ctx)

		r.mu.Lock()
		if i, ok := r.index[c.ID]; ok && r.connectors[i].Ready != ready {
			r.connectors[i].Ready = ready
			r.log.WithFields(logrus.Fields{
				"connector_id": c.ID,
				"ready":        ready,
			}).Info("Connector availability changed")
		}
		r.mu.Unlock()
	}
}

// Suggested returns the installable wallets that have no ready connector.
func (r *Registry) Suggested() []Suggestion {
	present := make(map[WalletTag]bool)
	for _, c := range r.Ready() {
		present[c.Wallet] = true
	}

	out := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if !present[s.Wallet] {
			out = append(out, s)
		}
	}
	return out
}
