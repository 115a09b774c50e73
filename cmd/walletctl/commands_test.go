package main

import (
	"bytes"
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("walletctl", func() {
	run := func(args ...string) (string, error) {
		out := &bytes.Buffer{}
		root := newRootCmd()
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs(append([]string{"--log-level", "error"}, args...))
		err := root.ExecuteContext(context.Background())
		return out.String(), err
	}

	BeforeEach(func() {
		GinkgoT().Setenv("SESSION_BACKEND", "sqlite")
		GinkgoT().Setenv("SESSION_SQLITE_PATH", filepath.Join(GinkgoT().TempDir(), "session.db"))
		GinkgoT().Setenv("LOCAL_PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
		GinkgoT().Setenv("INJECTED_RPC_URL", "")
		GinkgoT().Setenv("RELAY_BRIDGE_URL", "")
		GinkgoT().Setenv("CHAINS_FILE", "")
	})

	It("should list the default chains", func() {
		out, err := run("chains")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Ethereum"))
		Expect(out).To(ContainSubstring("8453"))
	})

	It("should list connectors and suggest wallets", func() {
		out, err := run("connectors")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("local"))
		Expect(out).To(ContainSubstring("Local Key"))
		Expect(out).To(ContainSubstring("https://metamask.io/download/"))
	})

	It("should keep the session across invocations", func() {
		out, err := run("connect", "local")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Connected 0xf39F...2266"))

		out, err = run("status")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Previous session found"))

		out, err = run("status", "--resume")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
		Expect(out).To(ContainSubstring("Local Key"))

		out, err = run("switch", "137")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Switched to Polygon"))

		_, err = run("switch", "999")
		Expect(err).To(MatchError(ContainSubstring("UNSUPPORTED_CHAIN")))

		out, err = run("disconnect")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Disconnected"))

		out, err = run("status")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("disconnected"))
	})

	It("should refuse an unknown connector", func() {
		_, err := run("connect", "ledger")
		Expect(err).To(MatchError(ContainSubstring("CONNECTOR_NOT_FOUND")))
	})

	It("should have nothing to watch before connecting", func() {
		out, err := run("watch")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No session to watch"))
	})

	It("should reject a watch refresh interval that is too short", func() {
		_, err := run("connect", "local")
		Expect(err).NotTo(HaveOccurred())

		_, err = run("watch", "--refresh", "1ms")
		Expect(err).To(MatchError(ContainSubstring("interval must be between")))
	})
})
