package manager_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/chains"
	"github.com/big14way/wagmi-project/pkg/connector"
	"github.com/big14way/wagmi-project/pkg/manager"
	"github.com/big14way/wagmi-project/pkg/provider"
	"github.com/big14way/wagmi-project/pkg/provider/providertest"
	"github.com/big14way/wagmi-project/pkg/session"
	"github.com/big14way/wagmi-project/pkg/storage"
	"github.com/big14way/wagmi-project/pkg/wallet"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	alice = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	bob   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// shiftingChain is a wallet that moves to another network right after
// reporting its chain, before anyone could have subscribed late.
type shiftingChain struct {
	*providertest.Fake
	to   int64
	once sync.Once
}

func (w *shiftingChain) ChainID(ctx context.Context) (int64, error) {
	id, err := w.Fake.ChainID(ctx)
	w.once.Do(func() {
		w.Fake.Emit(provider.Event{Type: provider.EventChainChanged, ChainID: w.to})
	})
	return id, err
}

type connectResult struct {
	sess session.Session
	err  error
}

var _ = Describe("Manager", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		logger   *logrus.Logger
		kv       *storage.Memory
		fake     *providertest.Fake
		registry *connector.Registry
		store    *session.Store
		mgr      *manager.Manager
		cfg      manager.Config
	)

	newManager := func() {
		store = session.NewStore(kv, registry, logger)
		cfg.Store = store
		var err error
		mgr, err = manager.New(cfg)
		Expect(err).NotTo(HaveOccurred())
	}

	connectAsync := func(id string) chan connectResult {
		done := make(chan connectResult, 1)
		go func() {
			defer GinkgoRecover()
			sess, err := mgr.Connect(ctx, id)
			done <- connectResult{sess, err}
		}()
		return done
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		logger = logrus.New()
		logger.SetOutput(io.Discard)

		kv = storage.NewMemory()
		fake = providertest.New(chains.Mainnet, alice)

		var err error
		registry, err = connector.NewRegistry(logger,
			connector.Connector{ID: "injected", Kind: connector.KindInjected, Wallet: connector.WalletMetaMask, Ready: true, Provider: fake},
			connector.Connector{ID: "walletconnect", Kind: connector.KindRelay, Wallet: connector.WalletWalletConnect, Ready: false, Provider: providertest.New(1)},
		)
		Expect(err).NotTo(HaveOccurred())

		cfg = manager.Config{
			Registry: registry,
			Chains:   chains.Default(),
			Logger:   logger,
		}
		newManager()
	})

	AfterEach(func() {
		cancel()
	})

	It("should require its collaborators", func() {
		_, err := manager.New(manager.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("should start disconnected", func() {
		Expect(mgr.State()).To(Equal(manager.Disconnected))
		Expect(mgr.Session()).To(Equal(session.None))
	})

	Describe("Connect", func() {
		It("should create and persist a session", func() {
			sess, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess).To(Equal(session.Session{Address: alice, ChainID: 1, ConnectorID: "injected"}))

			Expect(mgr.State()).To(Equal(manager.Connected))
			Expect(store.Get()).To(Equal(sess))
			Expect(fake.Subscribers()).To(Equal(1))

			_, ok, _ := kv.Get(ctx, session.RecentKey)
			Expect(ok).To(BeTrue())
		})

		It("should only reference registered connectors", func() {
			sess, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Find(sess.ConnectorID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject unknown connectors", func() {
			_, err := mgr.Connect(ctx, "ledger")
			Expect(wallet.IsWalletError(err, wallet.ErrCodeConnectorNotFound)).To(BeTrue())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
		})

		It("should reject connectors that are not ready", func() {
			_, err := mgr.Connect(ctx, "walletconnect")
			Expect(wallet.IsWalletError(err, wallet.ErrCodeConnectorUnavailable)).To(BeTrue())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
		})

		It("should report a user rejection and leave the store untouched", func() {
			fake.RequestErr = &provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request."}

			_, err := mgr.Connect(ctx, "injected")
			Expect(wallet.IsWalletError(err, wallet.ErrCodeUserRejected)).To(BeTrue())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Expect(store.Get()).To(Equal(session.None))
			Expect(fake.Subscribers()).To(BeZero())
		})

		It("should time out when configured to", func() {
			cfg.ConnectTimeout = 50 * time.Millisecond
			newManager()
			release := fake.GateRequests()
			defer release()

			_, err := mgr.Connect(ctx, "injected")
			Expect(wallet.IsWalletError(err, wallet.ErrCodeConnectionTimeout)).To(BeTrue())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
		})

		It("should fail when the wallet returns no accounts", func() {
			fake = providertest.New(1)
			registry, _ = connector.NewRegistry(logger, connector.Connector{ID: "injected", Ready: true, Provider: fake})
			cfg.Registry = registry
			newManager()

			_, err := mgr.Connect(ctx, "injected")
			Expect(wallet.IsWalletError(err, wallet.ErrCodeConnectionFailed)).To(BeTrue())
		})

		It("should reject a second attempt while one is in flight", func() {
			release := fake.GateRequests()
			first := connectAsync("injected")
			Eventually(mgr.State).Should(Equal(manager.Connecting))

			_, err := mgr.Connect(ctx, "injected")
			Expect(wallet.IsWalletError(err, wallet.ErrCodeAlreadyConnecting)).To(BeTrue())
			Expect(mgr.State()).To(Equal(manager.Connecting))

			release()
			var result connectResult
			Eventually(first).Should(Receive(&result))
			Expect(result.err).NotTo(HaveOccurred())
			Expect(result.sess.Address).To(Equal(alice))
			Expect(mgr.State()).To(Equal(manager.Connected))
			Expect(fake.Requests()).To(Equal(1))
		})

		It("should reject connecting again while connected", func() {
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())

			_, err = mgr.Connect(ctx, "injected")
			Expect(wallet.IsWalletError(err, wallet.ErrCodeAlreadyConnected)).To(BeTrue())
		})

		It("should discard an attempt interrupted by disconnect", func() {
			release := fake.GateRequests()
			first := connectAsync("injected")
			Eventually(mgr.State).Should(Equal(manager.Connecting))

			Expect(mgr.Disconnect(ctx)).To(Succeed())
			release()

			var result connectResult
			Eventually(first).Should(Receive(&result))
			Expect(result.err).To(HaveOccurred())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Expect(store.Get()).To(Equal(session.None))
			Expect(fake.Subscribers()).To(BeZero())
		})
	})

	Describe("Disconnect", func() {
		It("should clear the session and release the provider", func() {
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.Disconnect(ctx)).To(Succeed())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Expect(store.Get()).To(Equal(session.None))
			Expect(fake.Subscribers()).To(BeZero())
			Expect(fake.Closed()).To(Equal(1))

			_, ok, _ := kv.Get(ctx, session.RecentKey)
			Expect(ok).To(BeFalse())
		})

		It("should be idempotent", func() {
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.Disconnect(ctx)).To(Succeed())
			once := mgr.Status()
			Expect(mgr.Disconnect(ctx)).To(Succeed())
			Expect(mgr.Status()).To(Equal(once))
			Expect(fake.Closed()).To(Equal(1))
		})

		It("should always end with no session", func() {
			steps := []string{"connect", "disconnect", "disconnect", "connect", "connect", "switch", "disconnect", "connect", "disconnect"}
			for _, step := range steps {
				switch step {
				case "connect":
					_, _ = mgr.Connect(ctx, "injected")
				case "switch":
					_ = mgr.SwitchChain(ctx, chains.Base)
				case "disconnect":
					Expect(mgr.Disconnect(ctx)).To(Succeed())
					Expect(store.Get()).To(Equal(session.None))
					Expect(mgr.State()).To(Equal(manager.Disconnected))
				}
			}
		})
	})

	Describe("SwitchChain", func() {
		BeforeEach(func() {
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should move the session to the new chain", func() {
			Expect(mgr.SwitchChain(ctx, chains.Polygon)).To(Succeed())
			Expect(store.Get().ChainID).To(Equal(chains.Polygon))
			Expect(mgr.State()).To(Equal(manager.Connected))
		})

		It("should succeed without asking when already on the chain", func() {
			Expect(mgr.SwitchChain(ctx, chains.Mainnet)).To(Succeed())
			Expect(store.Get().ChainID).To(Equal(chains.Mainnet))
			Expect(fake.Switches()).To(BeEmpty())
		})

		It("should refuse chains outside the configured set", func() {
			err := mgr.SwitchChain(ctx, 999)
			Expect(wallet.IsWalletError(err, wallet.ErrCodeUnsupportedChain)).To(BeTrue())
			Expect(store.Get().ChainID).To(Equal(chains.Mainnet))
			Expect(fake.Switches()).To(BeEmpty())
		})

		It("should keep the chain when the user rejects", func() {
			fake.SwitchErr = &provider.RPCError{Code: provider.CodeUserRejected}
			err := mgr.SwitchChain(ctx, chains.Polygon)
			Expect(wallet.IsWalletError(err, wallet.ErrCodeChainSwitchRejected)).To(BeTrue())
			Expect(store.Get().ChainID).To(Equal(chains.Mainnet))
			Expect(mgr.State()).To(Equal(manager.Connected))
		})

		It("should report chains the wallet lacks as unsupported", func() {
			fake.SwitchErr = &provider.RPCError{Code: provider.CodeUnrecognizedChain}
			err := mgr.SwitchChain(ctx, chains.Base)
			Expect(wallet.IsWalletError(err, wallet.ErrCodeUnsupportedChain)).To(BeTrue())
			Expect(store.Get().ChainID).To(Equal(chains.Mainnet))
		})

		It("should require a session", func() {
			Expect(mgr.Disconnect(ctx)).To(Succeed())
			err := mgr.SwitchChain(ctx, chains.Polygon)
			Expect(wallet.IsWalletError(err, wallet.ErrCodeNotConnected)).To(BeTrue())
		})

		It("should reject a second switch while one is in flight", func() {
			release := fake.GateSwitches()
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- mgr.SwitchChain(ctx, chains.Polygon)
			}()
			Eventually(mgr.State).Should(Equal(manager.SwitchingChain))
			Expect(mgr.Session().Active()).To(BeTrue())

			err := mgr.SwitchChain(ctx, chains.Base)
			Expect(wallet.IsWalletError(err, wallet.ErrCodeOperationInProgress)).To(BeTrue())

			release()
			Eventually(done).Should(Receive(BeNil()))
			Expect(store.Get().ChainID).To(Equal(chains.Polygon))
		})

		It("should let a wallet-reported chain win over an in-flight switch", func() {
			release := fake.GateSwitches()
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- mgr.SwitchChain(ctx, chains.Polygon)
			}()
			Eventually(mgr.State).Should(Equal(manager.SwitchingChain))

			fake.Emit(provider.Event{Type: provider.EventChainChanged, ChainID: chains.Base})
			Expect(store.Get().ChainID).To(Equal(chains.Base))

			release()
			Eventually(done).Should(Receive(BeNil()))
			Expect(store.Get().ChainID).To(Equal(chains.Base))
			Expect(mgr.State()).To(Equal(manager.Connected))
		})

		It("should time out when configured to", func() {
			_ = mgr.Disconnect(ctx)
			cfg.SwitchTimeout = 50 * time.Millisecond
			newManager()
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())

			release := fake.GateSwitches()
			defer release()

			err = mgr.SwitchChain(ctx, chains.Polygon)
			Expect(wallet.IsWalletError(err, wallet.ErrCodeChainSwitchFailed)).To(BeTrue())
			Expect(store.Get().ChainID).To(Equal(chains.Mainnet))
			Expect(mgr.State()).To(Equal(manager.Connected))
		})
	})

	Describe("wallet changes while connecting", func() {
		It("should keep a chain change reported right after the handshake read it", func() {
			shifting := &shiftingChain{Fake: fake, to: chains.Polygon}
			registry, _ = connector.NewRegistry(logger, connector.Connector{ID: "injected", Ready: true, Provider: shifting})
			cfg.Registry = registry
			newManager()

			sess, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())

			walletChain, _ := fake.ChainID(ctx)
			Expect(walletChain).To(Equal(chains.Polygon))
			Expect(sess.ChainID).To(Equal(chains.Polygon))
			Expect(store.Get().ChainID).To(Equal(chains.Polygon))
		})

		It("should listen to the wallet before it answers", func() {
			release := fake.GateRequests()
			defer release()
			connectAsync("injected")

			Eventually(mgr.State).Should(Equal(manager.Connecting))
			Eventually(fake.Subscribers).Should(Equal(1))
		})

		It("should apply an external chain change to the result", func() {
			release := fake.GateRequests()
			done := connectAsync("injected")
			Eventually(mgr.State).Should(Equal(manager.Connecting))

			Expect(mgr.HandleExternalChange(ctx, provider.Event{Type: provider.EventChainChanged, ChainID: chains.Base})).To(Succeed())
			release()

			var result connectResult
			Eventually(done).Should(Receive(&result))
			Expect(result.err).NotTo(HaveOccurred())
			Expect(result.sess.ChainID).To(Equal(chains.Base))
			Expect(store.Get().ChainID).To(Equal(chains.Base))
		})

		It("should take the account the wallet switched to", func() {
			release := fake.GateRequests()
			done := connectAsync("injected")
			Eventually(mgr.State).Should(Equal(manager.Connecting))

			Expect(mgr.HandleExternalChange(ctx, provider.Event{Type: provider.EventAccountsChanged, Accounts: []string{bob}})).To(Succeed())
			release()

			var result connectResult
			Eventually(done).Should(Receive(&result))
			Expect(result.err).NotTo(HaveOccurred())
			Expect(result.sess.Address).To(Equal(bob))
		})

		It("should fail when the wallet revokes access before the attempt completes", func() {
			release := fake.GateRequests()
			done := connectAsync("injected")
			Eventually(mgr.State).Should(Equal(manager.Connecting))

			Expect(mgr.HandleExternalChange(ctx, provider.Event{Type: provider.EventAccountsChanged, Accounts: []string{}})).To(Succeed())
			release()

			var result connectResult
			Eventually(done).Should(Receive(&result))
			Expect(wallet.IsWalletError(result.err, wallet.ErrCodeUnauthorized)).To(BeTrue())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Expect(store.Get()).To(Equal(session.None))
			Expect(fake.Subscribers()).To(BeZero())
		})

		It("should fail when the wallet disconnects before the attempt completes", func() {
			release := fake.GateRequests()
			done := connectAsync("injected")
			Eventually(fake.Subscribers).Should(Equal(1))

			fake.Emit(provider.Event{Type: provider.EventDisconnect})
			release()

			var result connectResult
			Eventually(done).Should(Receive(&result))
			Expect(wallet.IsWalletError(result.err, wallet.ErrCodeProviderDisconnected)).To(BeTrue())
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Expect(store.Get()).To(Equal(session.None))
		})
	})

	Describe("HandleExternalChange", func() {
		BeforeEach(func() {
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should disconnect when the wallet reports no accounts", func() {
			Expect(mgr.HandleExternalChange(ctx, provider.Event{Type: provider.EventAccountsChanged, Accounts: []string{}})).To(Succeed())
			Expect(store.Get()).To(Equal(session.None))
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Expect(fake.Closed()).To(Equal(1))
		})

		It("should follow events delivered by the provider", func() {
			fake.Emit(provider.Event{Type: provider.EventAccountsChanged, Accounts: []string{bob}})
			Expect(store.Get().Address).To(Equal(bob))

			fake.Emit(provider.Event{Type: provider.EventChainChanged, ChainID: chains.Sepolia})
			Expect(store.Get().ChainID).To(Equal(chains.Sepolia))

			fake.Emit(provider.Event{Type: provider.EventAccountsChanged, Accounts: []string{}})
			Expect(store.Get()).To(Equal(session.None))
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Eventually(fake.Closed).Should(Equal(1))
		})

		It("should record a chain outside the set and flag it", func() {
			Expect(mgr.HandleExternalChange(ctx, provider.Event{Type: provider.EventChainChanged, ChainID: 10})).To(Succeed())

			st := mgr.Status()
			Expect(st.Session.ChainID).To(Equal(int64(10)))
			Expect(st.ChainSupported).To(BeFalse())
			Expect(st.Chain.Name).To(Equal("Chain 10"))
		})

		It("should disconnect when the provider does", func() {
			fake.Emit(provider.Event{Type: provider.EventDisconnect})
			Expect(store.Get()).To(Equal(session.None))
			Expect(mgr.State()).To(Equal(manager.Disconnected))
		})

		It("should ignore events once disconnected", func() {
			Expect(mgr.Disconnect(ctx)).To(Succeed())
			Expect(mgr.HandleExternalChange(ctx, provider.Event{Type: provider.EventChainChanged, ChainID: chains.Base})).To(Succeed())
			Expect(store.Get()).To(Equal(session.None))
		})
	})

	Describe("Status", func() {
		It("should describe the active session", func() {
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())

			st := mgr.Status()
			Expect(st.State).To(Equal(manager.Connected))
			Expect(st.ConnectorName).To(Equal("MetaMask"))
			Expect(st.Chain.Name).To(Equal("Ethereum"))
			Expect(st.ChainSupported).To(BeTrue())
		})
	})

	Describe("reconnecting after a restart", func() {
		BeforeEach(func() {
			_, err := mgr.Connect(ctx, "injected")
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SwitchChain(ctx, chains.Polygon)).To(Succeed())

			// a new process over the same storage
			newManager()
		})

		It("should offer the previous session without activating it", func() {
			pending, err := mgr.Pending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(Equal(session.Session{Address: alice, ChainID: chains.Polygon, ConnectorID: "injected"}))
			Expect(mgr.State()).To(Equal(manager.Disconnected))
			Expect(mgr.Session()).To(Equal(session.None))
		})

		It("should resume without prompting the wallet", func() {
			requests := fake.Requests()

			sess, err := mgr.Resume(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Address).To(Equal(alice))
			Expect(mgr.State()).To(Equal(manager.Connected))
			Expect(fake.Requests()).To(Equal(requests))
		})

		It("should not resume when the connector went away", func() {
			fake.SetAvailable(false)
			registry.Refresh(ctx)

			pending, err := mgr.Pending(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(Equal(session.None))

			_, err = mgr.Resume(ctx)
			Expect(wallet.IsWalletError(err, wallet.ErrCodeNotConnected)).To(BeTrue())
		})
	})
})
