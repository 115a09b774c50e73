// Package manager drives the wallet connection lifecycle. It is the only
// writer of the session store: connecting, switching networks, disconnecting
// and applying changes the wallet reports on its own.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/chains"
	"github.com/big14way/wagmi-project/pkg/connector"
	"github.com/big14way/wagmi-project/pkg/provider"
	"github.com/big14way/wagmi-project/pkg/session"
	"github.com/big14way/wagmi-project/pkg/wallet"
)

// Registry resolves connectors by ID.
type Registry interface {
	Find(id string) (connector.Connector, error)
}

// Config wires a Manager.
type Config struct {
	Registry Registry
	Store    *session.Store
	Chains   *chains.Set
	Logger   *logrus.Logger

	// ConnectTimeout bounds the wallet handshake. Zero waits as long as the
	// caller's context allows.
	ConnectTimeout time.Duration

	// SwitchTimeout bounds a network switch request. Zero waits as long as
	// the caller's context allows.
	SwitchTimeout time.Duration
}

// Validate checks the required collaborators.
func (c Config) Validate() error {
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Store == nil {
		return fmt.Errorf("session store is required")
	}
	if c.Chains == nil {
		return fmt.Errorf("chain set is required")
	}
	if c.ConnectTimeout < 0 || c.SwitchTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Manager serializes session transitions.
//
// Provider calls never run under a lock. Each connection attempt gets a new
// generation; results and wallet events from an older generation are
// dropped, which is how a disconnect discards an in-flight connect. Store
// writes are ordered by writeMu, taken before mu.
//
// Session listeners run inside those writes and must not call Connect,
// SwitchChain, Disconnect, Resume or HandleExternalChange.
type Manager struct {
	registry Registry
	store    *session.Store
	chains   *chains.Set
	log      *logrus.Logger

	connectTimeout time.Duration
	switchTimeout  time.Duration

	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64
	chainRev    uint64
	active      *connector.Connector
	unsubscribe func()
	pending     pendingChanges
}

// pendingChanges collects what the wallet reported while a connection was
// still being set up. The latest report of each kind wins.
type pendingChanges struct {
	accounts     []string
	accountsSeen bool
	chainID      int64
	disconnected bool
	cause        error
}

func (p *pendingChanges) record(ev provider.Event) {
	switch ev.Type {
	case provider.EventAccountsChanged:
		p.accounts = append([]string(nil), ev.Accounts...)
		p.accountsSeen = true
	case provider.EventChainChanged:
		if ev.ChainID > 0 {
			p.chainID = ev.ChainID
		}
	case provider.EventDisconnect:
		p.disconnected = true
		p.cause = ev.Err
	}
}

// settle applies the recorded changes to the handshake result.
func (p pendingChanges) settle(sess session.Session) (session.Session, error) {
	if p.disconnected {
		return session.None, wallet.NewWalletError(wallet.ErrCodeProviderDisconnected,
			"wallet disconnected while connecting", p.cause, 0)
	}
	if p.accountsSeen {
		if len(p.accounts) == 0 {
			return session.None, wallet.NewWalletError(wallet.ErrCodeUnauthorized,
				"wallet revoked access while connecting", nil, 0)
		}
		address, err := wallet.ValidateAddress(p.accounts[0])
		if err != nil {
			return session.None, wallet.NewWalletError(wallet.ErrCodeConnectionFailed,
				"wallet reported an invalid account", err, 0)
		}
		sess.Address = address
	}
	if p.chainID > 0 {
		sess.ChainID = p.chainID
	}
	return sess, nil
}

// New creates a disconnected Manager.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Manager{
		registry:       cfg.Registry,
		store:          cfg.Store,
		chains:         cfg.Chains,
		log:            cfg.Logger,
		connectTimeout: cfg.ConnectTimeout,
		switchTimeout:  cfg.SwitchTimeout,
		state:          Disconnected,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the current session, or session.None.
func (m *Manager) Session() session.Session {
	return m.store.Get()
}

// Connect asks the connector's wallet to authorize this app and makes the
// first returned account the session. It blocks until the wallet answers, the
// context ends or ConnectTimeout elapses.
func (m *Manager) Connect(ctx context.Context, connectorID string) (session.Session, error) {
	return m.establish(ctx, connectorID, "", func(ctx context.Context, p provider.Provider) ([]string, error) {
		return p.RequestAccounts(ctx)
	})
}

// Pending returns the session a previous run left behind if it can still be
// resumed, or session.None. While connected it returns the live session.
func (m *Manager) Pending(ctx context.Context) (session.Session, error) {
	if m.State().IsConnected() {
		return m.store.Get(), nil
	}
	return m.store.Restore(ctx)
}

// Resume re-enters Connected with the pending session after the user
// confirms it. The wallet is not prompted; it must still authorize the
// saved account. The chain is whatever the wallet is on now.
func (m *Manager) Resume(ctx context.Context) (session.Session, error) {
	if err := m.checkIdle(); err != nil {
		return session.None, err
	}

	pending, err := m.store.Restore(ctx)
	if err != nil {
		return session.None, err
	}
	if !pending.Active() {
		return session.None, wallet.NewWalletError(wallet.ErrCodeNotConnected, "no session to resume", nil, 0)
	}

	return m.establish(ctx, pending.ConnectorID, pending.Address, func(ctx context.Context, p provider.Provider) ([]string, error) {
		return p.Accounts(ctx)
	})
}

type accountsFn func(ctx context.Context, p provider.Provider) ([]string, error)

// establish runs one connection attempt. want selects a specific account;
// empty takes the wallet's first.
func (m *Manager) establish(ctx context.Context, connectorID, want string, accounts accountsFn) (session.Session, error) {
	c, gen, err := m.begin(connectorID)
	if err != nil {
		return session.None, err
	}

	logger := m.log.WithField("connector_id", connectorID)
	logger.Info("Connecting to wallet")

	// Subscribe before the handshake reads so nothing the wallet reports in
	// between is missed.
	unsubscribe := c.Provider.Subscribe(m.eventHandler(gen))
	m.mu.Lock()
	if m.gen == gen {
		m.unsubscribe = unsubscribe
		unsubscribe = nil
	}
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	sess, err := m.handshake(ctx, c, want, accounts)
	if err != nil {
		m.abort(gen)
		logger.WithFields(logrus.Fields{
			"code":  wallet.ErrorCode(err),
			"error": err,
		}).Warn("Wallet connection failed")
		return session.None, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		logger.Info("Discarding connection result after disconnect")
		return session.None, wallet.NewWalletError(wallet.ErrCodeConnectionFailed, "connection attempt cancelled by disconnect", nil, 0)
	}
	pending := m.pending
	m.pending = pendingChanges{}
	m.mu.Unlock()

	sess, err = pending.settle(sess)
	if err != nil {
		m.abort(gen)
		logger.WithFields(logrus.Fields{
			"code":  wallet.ErrorCode(err),
			"error": err,
		}).Warn("Wallet connection failed")
		return session.None, err
	}

	if err := m.store.Set(ctx, sess); err != nil {
		m.abort(gen)
		logger.WithError(err).Error("Failed to save session")
		return session.None, err
	}

	m.mu.Lock()
	m.state = Connected
	m.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"address":  sess.Address,
		"chain_id": sess.ChainID,
	}).Info("Wallet connected")

	if !m.chains.Contains(sess.ChainID) {
		logger.WithField("chain_id", sess.ChainID).Warn("Wallet is on an unsupported chain")
	}
	return sess, nil
}

// begin checks preconditions and enters Connecting.
func (m *Manager) begin(connectorID string) (connector.Connector, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkIdleLocked(); err != nil {
		return connector.Connector{}, 0, err
	}

	c, err := m.registry.Find(connectorID)
	if err != nil {
		return connector.Connector{}, 0, err
	}
	if !c.Ready {
		return connector.Connector{}, 0, wallet.NewWalletError(wallet.ErrCodeConnectorUnavailable,
			fmt.Sprintf("connector %q is not available", connectorID), nil, 0)
	}

	m.gen++
	m.state = Connecting
	m.active = &c
	m.pending = pendingChanges{}
	return c, m.gen, nil
}

func (m *Manager) handshake(ctx context.Context, c connector.Connector, want string, accounts accountsFn) (session.Session, error) {
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}

	list, err := accounts(ctx, c.Provider)
	if err != nil {
		return session.None, provider.ConnectError(err)
	}

	address, err := pickAccount(list, want)
	if err != nil {
		return session.None, err
	}

	chainID, err := c.Provider.ChainID(ctx)
	if err != nil {
		return session.None, provider.ConnectError(err)
	}

	return session.Session{
		Address:     address,
		ChainID:     chainID,
		ConnectorID: c.ID,
	}, nil
}

func pickAccount(accounts []string, want string) (string, error) {
	if want != "" {
		if !wallet.ContainsAddress(accounts, want) {
			return "", wallet.NewWalletError(wallet.ErrCodeUnauthorized, "wallet no longer authorizes the saved account", nil, 0)
		}
		return wallet.ValidateAddress(want)
	}
	if len(accounts) == 0 {
		return "", wallet.NewWalletError(wallet.ErrCodeConnectionFailed, "wallet returned no accounts", nil, 0)
	}
	address, err := wallet.ValidateAddress(accounts[0])
	if err != nil {
		return "", wallet.NewWalletError(wallet.ErrCodeConnectionFailed, "wallet returned an invalid account", err, 0)
	}
	return address, nil
}

// abort returns a failed attempt to Disconnected unless it was superseded.
func (m *Manager) abort(gen uint64) {
	m.mu.Lock()
	var unsubscribe func()
	if m.gen == gen {
		m.state = Disconnected
		m.active = nil
		m.pending = pendingChanges{}
		unsubscribe, m.unsubscribe = m.unsubscribe, nil
	}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Manager) checkIdle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkIdleLocked()
}

func (m *Manager) checkIdleLocked() error {
	switch m.state {
	case Connecting:
		return wallet.NewWalletError(wallet.ErrCodeAlreadyConnecting, "a connection attempt is already in progress", nil, 0)
	case Connected, SwitchingChain:
		return wallet.NewWalletError(wallet.ErrCodeAlreadyConnected, "a wallet is already connected", nil, 0)
	}
	return nil
}

// SwitchChain asks the wallet to move to chainID and records the new chain
// on success. Switching to the current chain succeeds without asking.
func (m *Manager) SwitchChain(ctx context.Context, chainID int64) error {
	m.mu.Lock()
	switch m.state {
	case Disconnected, Connecting:
		m.mu.Unlock()
		return wallet.NewWalletError(wallet.ErrCodeNotConnected, "no wallet connected", nil, chainID)
	case SwitchingChain:
		m.mu.Unlock()
		return wallet.NewWalletError(wallet.ErrCodeOperationInProgress, "a network switch is already in progress", nil, chainID)
	}
	if !m.chains.Contains(chainID) {
		m.mu.Unlock()
		return wallet.NewWalletError(wallet.ErrCodeUnsupportedChain, "chain is not configured", nil, chainID)
	}
	if m.store.Get().ChainID == chainID {
		m.mu.Unlock()
		return nil
	}

	m.state = SwitchingChain
	gen, rev := m.gen, m.chainRev
	p := m.active.Provider
	connectorID := m.active.ID
	m.mu.Unlock()

	logger := m.log.WithFields(logrus.Fields{
		"connector_id": connectorID,
		"chain_id":     chainID,
	})
	logger.Info("Requesting network switch")

	switchCtx := ctx
	if m.switchTimeout > 0 {
		var cancel context.CancelFunc
		switchCtx, cancel = context.WithTimeout(ctx, m.switchTimeout)
		defer cancel()
	}
	switchErr := p.SwitchChain(switchCtx, chainID)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		logger.Info("Discarding network switch result after disconnect")
		return wallet.NewWalletError(wallet.ErrCodeNotConnected, "session ended during network switch", nil, chainID)
	}
	m.state = Connected
	superseded := m.chainRev != rev
	m.mu.Unlock()

	if switchErr != nil {
		err := provider.SwitchError(switchErr, chainID)
		logger.WithFields(logrus.Fields{
			"code":  err.Code,
			"error": switchErr,
		}).Warn("Network switch failed")
		return err
	}

	if superseded {
		logger.Info("Wallet reported a chain change during the switch, keeping it")
		return nil
	}

	next := m.store.Get()
	next.ChainID = chainID
	if err := m.store.Set(ctx, next); err != nil {
		return err
	}

	logger.Info("Network switched")
	return nil
}

// Disconnect ends the session from any state and releases the connector's
// provider. Calling it while disconnected has no effect.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.writeMu.Lock()
	cleanup, err := m.teardown(ctx, "user request")
	m.writeMu.Unlock()

	cleanup()
	return err
}

// teardown ends the current generation and clears the store. The returned
// cleanup releases the provider and must run after writeMu is released, since
// a provider may be delivering an event that is waiting for it.
// Callers hold writeMu.
func (m *Manager) teardown(ctx context.Context, reason string) (func(), error) {
	m.mu.Lock()
	prev := m.state
	active := m.active
	unsubscribe := m.unsubscribe

	m.gen++
	m.state = Disconnected
	m.active = nil
	m.unsubscribe = nil
	m.pending = pendingChanges{}
	m.mu.Unlock()

	err := m.store.Clear(ctx)

	if prev != Disconnected {
		fields := logrus.Fields{"reason": reason}
		if active != nil {
			fields["connector_id"] = active.ID
		}
		m.log.WithFields(fields).Info("Wallet disconnected")
	}

	return func() {
		if unsubscribe != nil {
			unsubscribe()
		}
		if active != nil {
			if err := active.Provider.Close(); err != nil {
				m.log.WithError(err).Debug("Failed to close provider")
			}
		}
	}, err
}

// HandleExternalChange applies a change the wallet made on its own. While a
// connection is being set up the change is held and applied to its result;
// with no session at all it is ignored.
func (m *Manager) HandleExternalChange(ctx context.Context, ev provider.Event) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	cleanup, err := m.apply(ctx, gen, ev)
	cleanup()
	return err
}

// eventHandler scopes provider events to one connection generation.
func (m *Manager) eventHandler(gen uint64) provider.EventHandler {
	return func(ev provider.Event) {
		cleanup, err := m.apply(context.Background(), gen, ev)
		// Close may wait for the goroutine delivering this event.
		go cleanup()

		if err != nil {
			m.log.WithFields(logrus.Fields{
				"event": ev.Type,
				"error": err,
			}).Error("Failed to apply wallet event")
		}
	}
}

func noop() {}

func (m *Manager) apply(ctx context.Context, gen uint64, ev provider.Event) (func(), error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.gen != gen || m.state == Disconnected {
		m.mu.Unlock()
		return noop, nil
	}
	if m.state == Connecting {
		m.pending.record(ev)
		m.mu.Unlock()
		m.log.WithField("event", ev.Type).Debug("Holding wallet event until the connection is set up")
		return noop, nil
	}
	m.mu.Unlock()

	logger := m.log.WithField("event", ev.Type)

	switch ev.Type {
	case provider.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			return m.teardown(ctx, "wallet revoked access")
		}

		address, err := wallet.ValidateAddress(ev.Accounts[0])
		if err != nil {
			logger.WithError(err).Warn("Ignoring invalid account from wallet")
			return noop, nil
		}
		next := m.store.Get()
		if next.Address == address {
			return noop, nil
		}
		next.Address = address
		logger.WithField("address", address).Info("Wallet account changed")
		return noop, m.store.Set(ctx, next)

	case provider.EventChainChanged:
		if ev.ChainID <= 0 {
			return noop, nil
		}

		m.mu.Lock()
		m.chainRev++
		m.mu.Unlock()

		next := m.store.Get()
		if next.ChainID == ev.ChainID {
			return noop, nil
		}
		next.ChainID = ev.ChainID
		if m.chains.Contains(ev.ChainID) {
			logger.WithField("chain_id", ev.ChainID).Info("Wallet changed network")
		} else {
			logger.WithField("chain_id", ev.ChainID).Warn("Wallet changed to an unsupported network")
		}
		return noop, m.store.Set(ctx, next)

	case provider.EventDisconnect:
		reason := "wallet disconnected"
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		return m.teardown(ctx, reason)

	default:
		logger.Debug("Ignoring unknown wallet event")
		return noop, nil
	}
}
