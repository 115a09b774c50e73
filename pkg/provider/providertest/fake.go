// Package providertest supplies a scriptable wallet provider for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/big14way/wagmi-project/pkg/provider"
)

// Fake is an in-memory provider. Requests can be held open with Gate to
// exercise in-flight behavior, and failures are injected through the Err
// fields.
type Fake struct {
	mu sync.Mutex

	available  bool
	accounts   []string
	authorized bool
	chainID    int64
	closed     int

	// RequestErr fails RequestAccounts when set
	RequestErr error
	// SwitchErr fails SwitchChain when set
	SwitchErr error

	requestGate chan struct{}
	switchGate  chan struct{}
	requests    int
	switches    []int64

	handlers map[int]provider.EventHandler
	order    []int
	nextID   int
}

// New returns an available fake holding accounts on chainID. Accounts are not
// authorized until RequestAccounts succeeds or Authorize is called.
func New(chainID int64, accounts ...string) *Fake {
	return &Fake{
		available: true,
		accounts:  accounts,
		chainID:   chainID,
		handlers:  make(map[int]provider.EventHandler),
	}
}

// SetAvailable changes what Available reports.
func (f *Fake) SetAvailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = v
}

// Authorize marks the accounts as already authorized, as after an earlier visit.
func (f *Fake) Authorize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized = true
}

// GateRequests makes RequestAccounts block until the returned func is called.
func (f *Fake) GateRequests() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.requestGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// GateSwitches makes SwitchChain block until the returned func is called.
func (f *Fake) GateSwitches() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.switchGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *Fake) Available(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *Fake) RequestAccounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	f.requests++
	gate := f.requestGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestErr != nil {
		return nil, f.RequestErr
	}
	f.authorized = true
	return append([]string(nil), f.accounts...), nil
}

func (f *Fake) Accounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorized {
		return []string{}, nil
	}
	return append([]string(nil), f.accounts...), nil
}

func (f *Fake) ChainID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID, nil
}

func (f *Fake) SwitchChain(ctx context.Context, chainID int64) error {
	f.mu.Lock()
	f.switches = append(f.switches, chainID)
	gate := f.switchGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SwitchErr != nil {
		return f.SwitchErr
	}
	f.chainID = chainID
	return nil
}

func (f *Fake) Subscribe(handler provider.EventHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	f.order = append(f.order, id)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Emit delivers ev to every current subscriber on the calling goroutine.
// Account and chain events also update the fake's own state.
func (f *Fake) Emit(ev provider.Event) {
	f.mu.Lock()
	switch ev.Type {
	case provider.EventAccountsChanged:
		f.accounts = ev.Accounts
	case provider.EventChainChanged:
		f.chainID = ev.ChainID
	}
	var handlers []provider.EventHandler
	for _, id := range f.order {
		if h, ok := f.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Fake) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// Requests returns how many times RequestAccounts was called.
func (f *Fake) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// Switches returns the chains SwitchChain was asked for.
func (f *Fake) Switches() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.switches...)
}

// Closed returns how many times Close was called.
func (f *Fake) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var _ provider.Provider = (*Fake)(nil)
