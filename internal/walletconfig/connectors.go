// Package walletconfig assembles the session core for the walletctl binary:
// chain set, connectors, storage, session store and manager.
package walletconfig

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/chains"
	"github.com/big14way/wagmi-project/pkg/connector"
	"github.com/big14way/wagmi-project/pkg/manager"
	"github.com/big14way/wagmi-project/pkg/provider"
	"github.com/big14way/wagmi-project/pkg/session"
	"github.com/big14way/wagmi-project/pkg/storage"
	"github.com/big14way/wagmi-project/pkg/wallet"
)

// Connector IDs as they appear in saved sessions.
const (
	InjectedID = "injected"
	LocalID    = "local"
	RelayID    = "walletconnect"
)

// ConfigureConnectors builds one connector per configured wallet. Readiness
// is left false; Registry.Refresh probes it.
func ConfigureConnectors(config *Config, set *chains.Set, display provider.DisplayPairingFn) ([]connector.Connector, error) {
	var connectors []connector.Connector

	if config.InjectedRPCURL != "" {
		p, err := provider.NewRPCProvider(provider.RPCConfig{
			URL:          config.InjectedRPCURL,
			PollInterval: config.PollInterval,
			Logger:       config.Logger,
		})
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, connector.Connector{
			ID:       InjectedID,
			Kind:     connector.KindInjected,
			Wallet:   config.InjectedWallet,
			Provider: p,
		})
	}

	if config.LocalPrivateKey != "" {
		keys, err := wallet.NewKeyManager(config.LocalPrivateKey)
		if err != nil {
			return nil, err
		}
		p, err := provider.NewLocalProvider(keys, set, config.LocalStartChain, config.Logger)
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, connector.Connector{
			ID:       LocalID,
			Kind:     connector.KindInjected,
			Wallet:   connector.WalletLocal,
			Provider: p,
		})
	}

	if config.RelayBridgeURL != "" {
		p, err := provider.NewRelayProvider(provider.RelayConfig{
			BridgeURL: config.RelayBridgeURL,
			ProjectID: config.RelayProjectID,
			Metadata: provider.PeerMeta{
				Name:        "walletctl",
				Description: "Wallet session manager",
				URL:         "https://github.com/big14way/wagmi-project",
			},
			Display: display,
			Logger:  config.Logger,
		})
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, connector.Connector{
			ID:       RelayID,
			Kind:     connector.KindRelay,
			Wallet:   connector.WalletWalletConnect,
			Provider: p,
		})
	}

	return connectors, nil
}

// Runtime is the assembled session core.
type Runtime struct {
	Chains   *chains.Set
	Registry *connector.Registry
	Storage  storage.Store
	Sessions *session.Store
	Manager  *manager.Manager

	log *logrus.Logger
}

// Build loads the chain set, registers and probes connectors, opens storage
// and creates the manager.
func Build(ctx context.Context, config *Config, storageConfig *storage.Config, display provider.DisplayPairingFn) (*Runtime, error) {
	set, err := chains.Load(config.ChainsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load chains: %w", err)
	}

	connectors, err := ConfigureConnectors(config, set, display)
	if err != nil {
		return nil, fmt.Errorf("failed to configure connectors: %w", err)
	}

	registry, err := connector.NewRegistry(config.Logger, connectors...)
	if err != nil {
		return nil, err
	}
	registry.Refresh(ctx)

	kv, err := storage.Open(ctx, storageConfig, config.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	sessions := session.NewStore(kv, registry, config.Logger)

	mgr, err := manager.New(manager.Config{
		Registry:       registry,
		Store:          sessions,
		Chains:         set,
		Logger:         config.Logger,
		ConnectTimeout: config.ConnectTimeout,
		SwitchTimeout:  config.SwitchTimeout,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &Runtime{
		Chains:   set,
		Registry: registry,
		Storage:  kv,
		Sessions: sessions,
		Manager:  mgr,
		log:      config.Logger,
	}, nil
}

// Restore resumes the saved session when there is one. It returns the
// session, or session.None when nothing could be resumed.
func (r *Runtime) Restore(ctx context.Context) (session.Session, error) {
	pending, err := r.Manager.Pending(ctx)
	if err != nil || !pending.Active() {
		return session.None, err
	}
	return r.Manager.Resume(ctx)
}

// Close releases providers and storage. It does not end the session.
func (r *Runtime) Close() {
	for _, c := range r.Registry.List() {
		if err := c.Provider.Close(); err != nil {
			r.log.WithFields(logrus.Fields{
				"connector_id": c.ID,
				"error":        err,
			}).Debug("Failed to close provider")
		}
	}
	if err := r.Storage.Close(); err != nil {
		r.log.WithError(err).Debug("Failed to close session storage")
	}
}

// BalanceReader returns a read-only client for the configured chains.
func (r *Runtime) BalanceReader(ctx context.Context) (*wallet.Client, error) {
	configs := make([]wallet.NetworkConfig, 0, len(r.Chains.List()))
	for _, c := range r.Chains.List() {
		if c.RPCURL == "" {
			continue
		}
		configs = append(configs, wallet.DefaultNetworkConfig(c.ID, c.RPCURL))
	}
	return wallet.NewClient(ctx, r.log, configs)
}
