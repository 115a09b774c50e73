// Package provider defines the boundary between the session core and a wallet.
// The core talks only to Provider; adapters translate it onto a concrete
// transport (a local EIP-1193 endpoint, a relay bridge, an in-process key).
package provider

import (
	"context"
	"sync"
)

// Provider is the contract a wallet integration must satisfy.
type Provider interface {
	// Available reports whether the wallet can be used right now.
	Available(ctx context.Context) bool

	// RequestAccounts asks the wallet to authorize this app and returns the
	// authorized accounts. It may wait indefinitely on user approval.
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns the accounts already authorized, without prompting.
	Accounts(ctx context.Context) ([]string, error)

	// ChainID returns the chain the wallet is currently on.
	ChainID(ctx context.Context) (int64, error)

	// SwitchChain asks the wallet to move to chainID.
	SwitchChain(ctx context.Context, chainID int64) error

	// Subscribe registers handler for wallet-originated events.
	Subscribe(handler EventHandler) (unsubscribe func())

	// Close releases transport resources.
	Close() error
}

// EventType names a wallet-originated notification.
type EventType string

const (
	EventAccountsChanged EventType = "accountsChanged"
	EventChainChanged    EventType = "chainChanged"
	EventDisconnect      EventType = "disconnect"
)

// Event is a change reported by the wallet outside of any request.
type Event struct {
	Type     EventType
	Accounts []string // set for accountsChanged
	ChainID  int64    // set for chainChanged
	Err      error    // optional cause for disconnect
}

// EventHandler receives provider events. Handlers may be called from
// provider-owned goroutines.
type EventHandler func(Event)

// emitter fans events out to subscribed handlers.
type emitter struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]EventHandler
	order    []int
}

func (e *emitter) Subscribe(handler EventHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[int]EventHandler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[id] = handler
	e.order = append(e.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers, id)
			for i, v := range e.order {
				if v == id {
					e.order = append(e.order[:i], e.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	handlers := make([]EventHandler, 0, len(e.order))
	for _, id := range e.order {
		handlers = append(handlers, e.handlers[id])
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (e *emitter) subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
