package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval is how often account and chain state is polled when
	// the endpoint cannot push notifications
	DefaultPollInterval = 5 * time.Second

	// probeTimeout bounds the availability check
	probeTimeout = 2 * time.Second
)

// RPCConfig configures an injected-style provider reached over JSON-RPC.
type RPCConfig struct {
	// URL of the wallet endpoint (ws://, http:// or an IPC path)
	URL string

	// PollInterval for transports without subscriptions
	PollInterval time.Duration

	Logger *logrus.Logger
}

// RPCProvider speaks the EIP-1193 request methods to a wallet that exposes
// them over JSON-RPC, such as a desktop wallet listening on localhost.
type RPCProvider struct {
	emitter

	cfg RPCConfig
	log *logrus.Logger

	mu     sync.Mutex
	client *rpc.Client

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	// last values handed to callers; polling starts from them
	seenMu         sync.Mutex
	seenAccounts   []string
	seenChain      int64
	seenAccountsOK bool
	seenChainOK    bool
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

// NewRPCProvider creates a provider for the given endpoint. No connection is
// made until the first request.
func NewRPCProvider(cfg RPCConfig) (*RPCProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rpc provider URL is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &RPCProvider{
		cfg: cfg,
		log: cfg.Logger,
	}, nil
}

// Available probes the endpoint with eth_chainId.
func (p *RPCProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := p.ChainID(ctx)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"url":   p.cfg.URL,
			"error": err,
		}).Debug("Wallet endpoint not reachable")
		return false
	}
	return true
}

// RequestAccounts calls eth_requestAccounts.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	accounts, err := p.accounts(ctx, "eth_requestAccounts")
	if err == nil {
		p.sawAccounts(accounts)
	}
	return accounts, err
}

// Accounts calls eth_accounts.
func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := p.accounts(ctx, "eth_accounts")
	if err == nil {
		p.sawAccounts(accounts)
	}
	return accounts, err
}

func (p *RPCProvider) accounts(ctx context.Context, method string) ([]string, error) {
	client, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}

	var result []common.Address
	if err := client.CallContext(ctx, &result, method); err != nil {
		return nil, err
	}

	accounts := make([]string, len(result))
	for i, a := range result {
		accounts[i] = a.Hex()
	}
	return accounts, nil
}

// ChainID calls eth_chainId.
func (p *RPCProvider) ChainID(ctx context.Context) (int64, error) {
	id, err := p.chainID(ctx)
	if err == nil {
		p.seenMu.Lock()
		p.seenChain, p.seenChainOK = id, true
		p.seenMu.Unlock()
	}
	return id, err
}

func (p *RPCProvider) chainID(ctx context.Context) (int64, error) {
	client, err := p.dial(ctx)
	if err != nil {
		return 0, err
	}

	var id hexutil.Uint64
	if err := client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return int64(id), nil
}

// SwitchChain calls wallet_switchEthereumChain (EIP-3326).
func (p *RPCProvider) SwitchChain(ctx context.Context, chainID int64) error {
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}

	return client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{
		ChainID: hexutil.Uint64(chainID),
	})
}

// Subscribe registers handler and starts watching the wallet on first use.
func (p *RPCProvider) Subscribe(handler EventHandler) func() {
	unsubscribe := p.emitter.Subscribe(handler)
	p.startWatch()
	return unsubscribe
}

// Close stops watching and closes the connection.
func (p *RPCProvider) Close() error {
	p.stopWatch()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	return nil
}

func (p *RPCProvider) sawAccounts(accounts []string) {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	p.seenAccounts = append([]string(nil), accounts...)
	p.seenAccountsOK = true
}

// baseline returns what callers were last told, falling back to the given
// fresh reads for values never handed out.
func (p *RPCProvider) baseline(accounts []string, chainID int64) ([]string, int64) {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	if p.seenAccountsOK {
		accounts = append([]string(nil), p.seenAccounts...)
	}
	if p.seenChainOK {
		chainID = p.seenChain
	}
	return accounts, chainID
}

func (p *RPCProvider) dial(ctx context.Context) (*rpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	client, err := rpc.DialContext(ctx, p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet endpoint: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *RPCProvider) startWatch() {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()

	if p.watchCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.watchCancel = cancel
	p.watchDone = make(chan struct{})
	go p.watch(ctx, p.watchDone)
}

func (p *RPCProvider) stopWatch() {
	p.watchMu.Lock()
	cancel, done := p.watchCancel, p.watchDone
	p.watchCancel, p.watchDone = nil, nil
	p.watchMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// watch prefers push notifications and falls back to polling when the
// transport (plain HTTP) or the wallet does not offer them.
func (p *RPCProvider) watch(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := p.subscribe(ctx); err != nil {
		p.log.WithFields(logrus.Fields{
			"url":   p.cfg.URL,
			"error": err,
		}).Debug("Wallet notifications unavailable, polling instead")
		p.poll(ctx)
	}
}

func (p *RPCProvider) subscribe(ctx context.Context) error {
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}

	accountsCh := make(chan []common.Address, 4)
	accountsSub, err := client.Subscribe(ctx, "eth", accountsCh, "accountsChanged")
	if err != nil {
		return err
	}
	defer accountsSub.Unsubscribe()

	chainCh := make(chan hexutil.Uint64, 4)
	chainSub, err := client.Subscribe(ctx, "eth", chainCh, "chainChanged")
	if err != nil {
		return err
	}
	defer chainSub.Unsubscribe()

	p.log.WithField("url", p.cfg.URL).Debug("Subscribed to wallet notifications")

	for {
		select {
		case <-ctx.Done():
			return nil
		case accounts := <-accountsCh:
			p.emit(Event{Type: EventAccountsChanged, Accounts: hexAddresses(accounts)})
		case id := <-chainCh:
			p.emit(Event{Type: EventChainChanged, ChainID: int64(id)})
		case err := <-accountsSub.Err():
			p.emit(Event{Type: EventDisconnect, Err: err})
			return nil
		case err := <-chainSub.Err():
			p.emit(Event{Type: EventDisconnect, Err: err})
			return nil
		}
	}
}

func (p *RPCProvider) poll(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var (
		lastAccounts []string
		lastChain    int64
		primed       bool
	)

	for {
		accounts, accErr := p.accounts(ctx, "eth_accounts")
		chainID, chainErr := p.chainID(ctx)

		if ctx.Err() != nil {
			return
		}

		switch {
		case isDisconnected(accErr) || isDisconnected(chainErr):
			p.emit(Event{Type: EventDisconnect, Err: firstErr(accErr, chainErr)})
			return
		case accErr != nil || chainErr != nil:
			p.log.WithError(firstErr(accErr, chainErr)).Debug("Wallet poll failed")
		case !primed:
			// A change between a caller's last read and now is still a change.
			lastAccounts, lastChain = p.baseline(accounts, chainID)
			primed = true
			fallthrough
		default:
			if !sameAccounts(accounts, lastAccounts) {
				lastAccounts = accounts
				p.emit(Event{Type: EventAccountsChanged, Accounts: accounts})
			}
			if chainID != lastChain {
				lastChain = chainID
				p.emit(Event{Type: EventChainChanged, ChainID: chainID})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isDisconnected(err error) bool {
	code, ok := ProviderCode(err)
	return ok && code == CodeDisconnected
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func hexAddresses(in []common.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.Hex()
	}
	return out
}

func sameAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
