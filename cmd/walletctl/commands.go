package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/big14way/wagmi-project/pkg/manager"
	"github.com/big14way/wagmi-project/pkg/monitor"
	"github.com/big14way/wagmi-project/pkg/session"
	"github.com/big14way/wagmi-project/pkg/wallet"
)

func (a *app) chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSYMBOL\tEXPLORER")
			for _, c := range a.rt.Chains.List() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.NativeSymbol, c.ExplorerURL)
			}
			return w.Flush()
		},
	}
}

func (a *app) connectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List wallet connectors and suggested wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWALLET\tKIND\tREADY")
			for _, c := range a.rt.Registry.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", c.ID, c.DisplayName(), c.Kind, c.Ready)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if suggested := a.rt.Registry.Suggested(); len(suggested) > 0 {
				fmt.Fprintln(out, "\nGet a wallet:")
				for _, s := range suggested {
					fmt.Fprintf(out, "  %-16s %s\n", s.Name, s.DownloadURL)
				}
			}
			return nil
		},
	}
}

// watchOptions configures the background work done while watching.
type watchOptions struct {
	refresh time.Duration
	balance bool
}

func (o *watchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&o.refresh, "refresh", monitor.DefaultRefreshInterval, "how often to re-probe wallets while watching")
	cmd.Flags().BoolVar(&o.balance, "balance", false, "print the native balance whenever it changes")
}

func (a *app) connectCmd() *cobra.Command {
	var (
		watch bool
		opts  watchOptions
	)

	cmd := &cobra.Command{
		Use:   "connect <connector-id>",
		Short: "Connect a wallet unless a session is already active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if _, err := a.rt.Restore(ctx); err != nil {
				return err
			}

			sess, err := a.rt.Manager.Connect(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Connected %s\n", sess)

			if !watch {
				return nil
			}
			return a.watchSession(cmd, opts)
		},
	}
	// Relay sessions end with the process.
	cmd.Flags().BoolVar(&watch, "watch", false, "stay connected and print session changes until interrupted")
	opts.bind(cmd)
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	var (
		resume  bool
		balance bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if resume {
				if _, err := a.rt.Restore(ctx); err != nil {
					return err
				}
			} else {
				pending, err := a.rt.Manager.Pending(ctx)
				if err != nil {
					return err
				}
				if pending.Active() {
					fmt.Fprintf(out, "Previous session found: %s (run with --resume to reconnect)\n", pending)
					return nil
				}
			}

			st := a.rt.Manager.Status()
			printStatus(out, st)

			if balance && st.Session.Active() && st.ChainSupported {
				reader, err := a.rt.BalanceReader(ctx)
				if err != nil {
					return err
				}
				defer reader.Close()

				wei, err := reader.GetBalance(ctx, st.Session.ChainID, st.Session.Address)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Balance:   %s %s\n", wallet.FormatBalance(wei, 4), st.Chain.NativeSymbol)

				if names, err := reader.Names(); err == nil {
					if name, _ := names.Name(ctx, st.Session.Address); name != "" {
						fmt.Fprintf(out, "ENS:       %s\n", name)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "reconnect the previous session if the wallet still authorizes it")
	cmd.Flags().BoolVar(&balance, "balance", false, "show the native balance on the current chain and the ENS name")
	return cmd
}

func printStatus(out io.Writer, st manager.Status) {
	if !st.Session.Active() {
		fmt.Fprintf(out, "State:     %s\n", st.State)
		return
	}

	chain := st.Chain.Name
	if !st.ChainSupported {
		chain += " (unsupported, switch networks)"
	}
	fmt.Fprintf(out, "State:     %s\n", st.State)
	fmt.Fprintf(out, "Account:   %s\n", st.Session.Address)
	fmt.Fprintf(out, "Network:   %s (%d)\n", chain, st.Session.ChainID)
	fmt.Fprintf(out, "Connector: %s\n", st.ConnectorName)
}

func (a *app) switchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <chain-id>",
		Short: "Ask the wallet to switch networks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chain ID %q", args[0])
			}

			if _, err := a.rt.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.rt.Manager.SwitchChain(cmd.Context(), chainID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to %s\n", a.rt.Chains.Name(chainID))
			return nil
		},
	}
}

func (a *app) disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "End the session and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Restoring first lets the provider be released properly.
			if _, err := a.rt.Restore(cmd.Context()); err != nil {
				a.log.WithError(err).Debug("No session to restore before disconnect")
			}
			if err := a.rt.Manager.Disconnect(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resume the session and print changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.rt.Restore(cmd.Context())
			if err != nil {
				return err
			}
			if !sess.Active() {
				fmt.Fprintln(cmd.OutOrStdout(), "No session to watch; run connect first")
				return nil
			}
			return a.watchSession(cmd, opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

// watchSession prints every session change until the command's context ends
// or the session does. Wallets are re-probed in the background meanwhile.
func (a *app) watchSession(cmd *cobra.Command, opts watchOptions) error {
	out := cmd.OutOrStdout()
	ended := make(chan struct{})
	var (
		once  sync.Once
		outMu sync.Mutex
	)

	unsubscribe := a.rt.Sessions.Subscribe(func(s session.Session) {
		outMu.Lock()
		fmt.Fprintf(out, "session: %s\n", s)
		outMu.Unlock()
		if !s.Active() {
			once.Do(func() { close(ended) })
		}
	})
	defer unsubscribe()

	refresh, err := monitor.NewRefreshTask(a.rt.Registry, a.rt.Sessions.Get, opts.refresh, a.log)
	if err != nil {
		return err
	}
	mon, err := monitor.New(a.log, refresh)
	if err != nil {
		return err
	}

	if opts.balance {
		reader, err := a.rt.BalanceReader(cmd.Context())
		if err != nil {
			return err
		}
		defer reader.Close()

		balance, err := monitor.NewBalanceTask(reader, a.rt.Sessions.Get, func(s session.Session, wei *big.Int) {
			symbol := "ETH"
			if c, ok := a.rt.Chains.Find(s.ChainID); ok {
				symbol = c.NativeSymbol
			}
			outMu.Lock()
			defer outMu.Unlock()
			fmt.Fprintf(out, "balance: %s %s\n", wallet.FormatBalance(wei, 4), symbol)
		}, monitor.DefaultBalanceInterval, a.log)
		if err != nil {
			return err
		}
		if err := mon.AddTask(balance); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "Watching, press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	monErr := make(chan error, 1)
	go func() { monErr <- mon.Run(ctx) }()
	select {
	case <-cmd.Context().Done():
	case <-ended:
	case err := <-monErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
	cancel()
	<-monErr
	return nil
}
