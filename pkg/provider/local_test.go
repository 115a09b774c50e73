package provider_test

import (
	"context"

	"github.com/big14way/wagmi-project/pkg/chains"
	"github.com/big14way/wagmi-project/pkg/provider"
	"github.com/big14way/wagmi-project/pkg/wallet"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalProvider", func() {
	var (
		p      *provider.LocalProvider
		keys   *wallet.KeyManager
		events []provider.Event
		ctx    = context.Background()
	)

	BeforeEach(func() {
		var err error
		keys, err = wallet.GenerateKeyManager()
		Expect(err).NotTo(HaveOccurred())

		p, err = provider.NewLocalProvider(keys, chains.Default(), 0, quietLogger())
		Expect(err).NotTo(HaveOccurred())

		events = nil
		p.Subscribe(func(ev provider.Event) { events = append(events, ev) })
	})

	It("should start on the first configured chain", func() {
		id, err := p.ChainID(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(chains.Mainnet))
		Expect(p.Available(ctx)).To(BeTrue())
	})

	It("should return the key's account", func() {
		accounts, err := p.RequestAccounts(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts).To(Equal([]string{keys.GetAddress().Hex()}))
	})

	It("should switch between configured chains and announce it", func() {
		Expect(p.SwitchChain(ctx, chains.Base)).To(Succeed())
		Expect(events).To(ConsistOf(provider.Event{Type: provider.EventChainChanged, ChainID: chains.Base}))

		// same chain again is silent
		Expect(p.SwitchChain(ctx, chains.Base)).To(Succeed())
		Expect(events).To(HaveLen(1))
	})

	It("should refuse unknown chains with 4902", func() {
		err := p.SwitchChain(ctx, 999)
		code, ok := provider.ProviderCode(err)
		Expect(ok).To(BeTrue())
		Expect(code).To(Equal(provider.CodeUnrecognizedChain))
	})

	It("should report an empty account list after revocation", func() {
		p.Revoke()
		accounts, err := p.Accounts(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts).To(BeEmpty())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal(provider.EventAccountsChanged))
		Expect(events[0].Accounts).To(BeEmpty())

		_, err = p.RequestAccounts(ctx)
		Expect(err).NotTo(HaveOccurred())
		accounts, _ = p.Accounts(ctx)
		Expect(accounts).To(HaveLen(1))
	})

	It("should reject a start chain outside the set", func() {
		_, err := provider.NewLocalProvider(keys, chains.Default(), 10, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should stop delivering after unsubscribe", func() {
		var count int
		unsubscribe := p.Subscribe(func(provider.Event) { count++ })
		unsubscribe()
		unsubscribe()
		Expect(p.SwitchChain(ctx, chains.Polygon)).To(Succeed())
		Expect(count).To(BeZero())
	})
})
