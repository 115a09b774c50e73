// Command walletctl manages a wallet session from the terminal: list
// connectors and chains, connect, switch networks, watch for wallet-side
// changes and disconnect. Each run restores the previous session from
// storage, so commands compose across invocations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/big14way/wagmi-project/internal/walletconfig"
	"github.com/big14way/wagmi-project/pkg/logging"
	"github.com/big14way/wagmi-project/pkg/storage"
)

type app struct {
	log *logrus.Logger
	rt  *walletconfig.Runtime
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel string

	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Connect to a wallet and manage the session",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel == "" {
				logLevel = os.Getenv("LOG_LEVEL")
			}
			a.log = logging.NewLogger(os.Stderr, logLevel, !isatty.IsTerminal(os.Stderr.Fd()))

			walletConfig, err := walletconfig.NewWalletConfig()
			if err != nil {
				return fmt.Errorf("wallet config: %w", err)
			}
			walletConfig.Logger = a.log

			storageConfig, err := storage.NewStorageConfig()
			if err != nil {
				return fmt.Errorf("storage config: %w", err)
			}

			a.rt, err = walletconfig.Build(cmd.Context(), walletConfig, storageConfig, a.displayPairing(cmd))
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.rt != nil {
				a.rt.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		a.chainsCmd(),
		a.connectorsCmd(),
		a.connectCmd(),
		a.statusCmd(),
		a.switchCmd(),
		a.disconnectCmd(),
		a.watchCmd(),
	)
	return root
}

// displayPairing prints the relay pairing URI as a terminal QR code.
func (a *app) displayPairing(cmd *cobra.Command) func(uri string, png []byte) error {
	return func(uri string, _ []byte) error {
		qr, err := qrcode.New(uri, qrcode.Medium)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Scan with your wallet:")
		fmt.Fprint(out, qr.ToSmallString(false))
		fmt.Fprintln(out, uri)
		return nil
	}
}
