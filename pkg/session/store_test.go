package session_test

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/connector"
	"github.com/big14way/wagmi-project/pkg/provider/providertest"
	"github.com/big14way/wagmi-project/pkg/session"
	"github.com/big14way/wagmi-project/pkg/storage"
	"github.com/big14way/wagmi-project/pkg/wallet"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const account = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1111"

// flakyKV fails writes on demand.
type flakyKV struct {
	*storage.Memory
	failWrites bool
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failWrites {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flakyKV) Delete(ctx context.Context, key string) error {
	if f.failWrites {
		return errors.New("disk full")
	}
	return f.Memory.Delete(ctx, key)
}

var _ = Describe("Store", func() {
	var (
		ctx      = context.Background()
		kv       *flakyKV
		fake     *providertest.Fake
		registry *connector.Registry
		store    *session.Store
		logger   *logrus.Logger
		checksum string
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetOutput(io.Discard)

		var err error
		checksum, err = wallet.ValidateAddress(account)
		Expect(err).NotTo(HaveOccurred())

		kv = &flakyKV{Memory: storage.NewMemory()}
		fake = providertest.New(1, checksum)
		fake.Authorize()

		registry, err = connector.NewRegistry(logger, connector.Connector{
			ID:       "injected",
			Kind:     connector.KindInjected,
			Wallet:   connector.WalletMetaMask,
			Ready:    true,
			Provider: fake,
		})
		Expect(err).NotTo(HaveOccurred())

		store = session.NewStore(kv, registry, logger)
	})

	It("should start with no session", func() {
		Expect(store.Get()).To(Equal(session.None))
		Expect(store.Get().Active()).To(BeFalse())
	})

	It("should persist only address, chain and connector", func() {
		Expect(store.Set(ctx, session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"})).To(Succeed())

		record, ok, err := kv.Get(ctx, session.RecentKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(record).To(MatchJSON(`{"address":"` + checksum + `","chainId":1,"connectorId":"injected"}`))
	})

	It("should restore the same session in a fresh store", func() {
		sess := session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"}
		Expect(store.Set(ctx, sess)).To(Succeed())

		fresh := session.NewStore(kv, registry, logger)
		restored, err := fresh.Restore(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored).To(Equal(sess))

		// restoring does not activate
		Expect(fresh.Get()).To(Equal(session.None))
	})

	It("should yield none when nothing was saved", func() {
		restored, err := store.Restore(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored).To(Equal(session.None))
	})

	DescribeTable("should discard records that cannot be parsed",
		func(record string) {
			Expect(kv.Memory.Set(ctx, session.RecentKey, []byte(record))).To(Succeed())

			restored, err := store.Restore(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(restored).To(Equal(session.None))

			_, ok, _ := kv.Get(ctx, session.RecentKey)
			Expect(ok).To(BeFalse())
		},
		Entry("not json", `{"address":`),
		Entry("bad address", `{"address":"0x1234","chainId":1,"connectorId":"injected"}`),
		Entry("missing chain", `{"address":"`+account+`","connectorId":"injected"}`),
		Entry("missing connector", `{"address":"`+account+`","chainId":1}`),
	)

	It("should yield none when the connector is not ready", func() {
		Expect(store.Set(ctx, session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"})).To(Succeed())
		fake.SetAvailable(false)
		registry.Refresh(ctx)

		restored, err := store.Restore(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored).To(Equal(session.None))
	})

	It("should yield none when the connector is gone", func() {
		Expect(kv.Memory.Set(ctx, session.RecentKey,
			[]byte(`{"address":"`+checksum+`","chainId":1,"connectorId":"ledger"}`))).To(Succeed())

		restored, err := store.Restore(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored).To(Equal(session.None))
	})

	It("should yield none when the wallet no longer authorizes the account", func() {
		Expect(store.Set(ctx, session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"})).To(Succeed())

		other := providertest.New(1, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
		other.Authorize()
		registry, _ = connector.NewRegistry(logger, connector.Connector{ID: "injected", Ready: true, Provider: other})

		restored, err := session.NewStore(kv, registry, logger).Restore(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored).To(Equal(session.None))
	})

	It("should match the stored address regardless of checksum case", func() {
		Expect(kv.Memory.Set(ctx, session.RecentKey,
			[]byte(`{"address":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1111","chainId":1,"connectorId":"injected"}`))).To(Succeed())

		restored, err := store.Restore(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored.Address).To(Equal(checksum))
	})

	It("should clear both memory and the record", func() {
		Expect(store.Set(ctx, session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"})).To(Succeed())
		Expect(store.Clear(ctx)).To(Succeed())

		Expect(store.Get()).To(Equal(session.None))
		_, ok, _ := kv.Get(ctx, session.RecentKey)
		Expect(ok).To(BeFalse())
	})

	It("should leave everything unchanged when persistence fails", func() {
		sess := session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"}
		Expect(store.Set(ctx, sess)).To(Succeed())

		kv.failWrites = true
		err := store.Set(ctx, session.Session{Address: checksum, ChainID: 137, ConnectorID: "injected"})
		Expect(wallet.IsWalletError(err, wallet.ErrCodePersistenceFailed)).To(BeTrue())
		Expect(store.Get()).To(Equal(sess))

		err = store.Clear(ctx)
		Expect(wallet.IsWalletError(err, wallet.ErrCodePersistenceFailed)).To(BeTrue())
		Expect(store.Get()).To(Equal(sess))

		kv.failWrites = false
		restored, _ := store.Restore(ctx)
		Expect(restored).To(Equal(sess))
	})

	It("should reject malformed sessions", func() {
		Expect(store.Set(ctx, session.Session{Address: "nope", ChainID: 1, ConnectorID: "injected"})).NotTo(Succeed())
		Expect(store.Set(ctx, session.Session{Address: checksum, ChainID: 0, ConnectorID: "injected"})).NotTo(Succeed())
		Expect(store.Get()).To(Equal(session.None))
	})

	Describe("listeners", func() {
		It("should see the full new state, in registration order", func() {
			var calls []string
			store.Subscribe(func(s session.Session) {
				Expect(store.Get()).To(Equal(s))
				calls = append(calls, "first:"+s.String())
			})
			store.Subscribe(func(s session.Session) {
				calls = append(calls, "second:"+s.String())
			})

			sess := session.Session{Address: checksum, ChainID: 137, ConnectorID: "injected"}
			Expect(store.Set(ctx, sess)).To(Succeed())
			Expect(store.Clear(ctx)).To(Succeed())

			Expect(calls).To(Equal([]string{
				"first:" + sess.String(),
				"second:" + sess.String(),
				"first:none",
				"second:none",
			}))
		})

		It("should be called on every set and clear until unsubscribed", func() {
			var seen []session.Session
			unsubscribe := store.Subscribe(func(s session.Session) { seen = append(seen, s) })

			Expect(store.Clear(ctx)).To(Succeed())
			Expect(seen).To(Equal([]session.Session{session.None}))

			sess := session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"}
			Expect(store.Set(ctx, sess)).To(Succeed())
			Expect(store.Set(ctx, sess)).To(Succeed())
			Expect(seen).To(Equal([]session.Session{session.None, sess, sess}))

			unsubscribe()
			Expect(store.Clear(ctx)).To(Succeed())
			Expect(seen).To(HaveLen(3))
		})

		It("should not be called when persistence fails", func() {
			count := 0
			store.Subscribe(func(session.Session) { count++ })

			kv.failWrites = true
			Expect(store.Set(ctx, session.Session{Address: checksum, ChainID: 1, ConnectorID: "injected"})).NotTo(Succeed())
			Expect(count).To(BeZero())
		})
	})
})
