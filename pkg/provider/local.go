package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/chains"
	"github.com/big14way/wagmi-project/pkg/wallet"
)

// LocalProvider answers wallet requests from an in-process key. It stands in
// for a browser extension during development and never prompts.
type LocalProvider struct {
	emitter

	keys   *wallet.KeyManager
	chains *chains.Set
	log    *logrus.Logger

	mu      sync.Mutex
	chainID int64
	revoked bool
}

// NewLocalProvider creates a provider for keys, starting on startChain.
// A zero startChain selects the first configured chain.
func NewLocalProvider(keys *wallet.KeyManager, set *chains.Set, startChain int64, logger *logrus.Logger) (*LocalProvider, error) {
	if keys == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if set == nil {
		return nil, fmt.Errorf("chain set is required")
	}
	if startChain == 0 {
		startChain = set.IDs()[0]
	}
	if !set.Contains(startChain) {
		return nil, fmt.Errorf("start chain %d is not configured", startChain)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &LocalProvider{
		keys:    keys,
		chains:  set,
		log:     logger,
		chainID: startChain,
	}, nil
}

// Available always reports true; the key is in process.
func (p *LocalProvider) Available(ctx context.Context) bool {
	return true
}

// RequestAccounts authorizes the key's account, undoing any earlier Revoke.
func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.revoked = false
	p.mu.Unlock()

	return []string{p.keys.GetAddress().Hex()}, nil
}

// Accounts returns the key's account unless authorization was revoked.
func (p *LocalProvider) Accounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.revoked {
		return []string{}, nil
	}
	return []string{p.keys.GetAddress().Hex()}, nil
}

// ChainID returns the current chain.
func (p *LocalProvider) ChainID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

// SwitchChain moves to any configured chain and emits chainChanged, the way
// an extension wallet does after approving a switch.
func (p *LocalProvider) SwitchChain(ctx context.Context, chainID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.chains.Contains(chainID) {
		return &RPCError{
			Code:    CodeUnrecognizedChain,
			Message: fmt.Sprintf("unrecognized chain ID %d", chainID),
		}
	}

	p.mu.Lock()
	changed := p.chainID != chainID
	p.chainID = chainID
	p.mu.Unlock()

	if changed {
		p.log.WithField("chain_id", chainID).Debug("Local wallet switched chain")
		p.emit(Event{Type: EventChainChanged, ChainID: chainID})
	}
	return nil
}

// Revoke withdraws the account's authorization and notifies subscribers with
// an empty account list.
func (p *LocalProvider) Revoke() {
	p.mu.Lock()
	p.revoked = true
	p.mu.Unlock()

	p.emit(Event{Type: EventAccountsChanged, Accounts: []string{}})
}

// Subscribe registers handler for chain and account changes.
func (p *LocalProvider) Subscribe(handler EventHandler) func() {
	return p.emitter.Subscribe(handler)
}

// Close is a no-op; nothing is held open.
func (p *LocalProvider) Close() error {
	return nil
}
