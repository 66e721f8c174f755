// Command gatedemo runs sample producers against simulated owners to show
// how events are gated, queued and dropped across pause, recreation and
// finish.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
	"github.com/randalmurphal/eventgate/pkg/eventgate/loop"
	"github.com/randalmurphal/eventgate/pkg/eventgate/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "gatedemo:", err)
		os.Exit(1)
	}
}

// app is the state shared by subcommands once the root has loaded
// settings.
type app struct {
	configPath string
	settings   config.Settings
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gatedemo",
		Short:         "Run sample producers against lifecycle-gated receivers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "settings file (.yaml, .yml, .json or .toml)")

	root.AddCommand(newTimingCmd(a), newCalculatorCmd(a), newSendCmd(a))
	return root
}

func (a *app) load(logOut io.Writer) error {
	a.settings = config.Default()
	if a.configPath != "" {
		s, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.settings = s
	}
	a.logger = a.settings.NewLogger(logOut)
	for _, key := range a.settings.Unknown {
		a.logger.Warn("unknown config key", slog.String("key", key))
	}
	return nil
}

// host is one running dispatch loop with its owner registry.
type host struct {
	loop     *loop.Loop
	registry *eventgate.Registry
	store    store.Store
	regOpts  []eventgate.RegistryOption
}

// restart closes the registry and opens a new one on the same loop and
// store, as a fresh process would. Every lifecycle is destroyed; stored
// owner records survive. Must be called on the loop goroutine.
func (h *host) restart() error {
	if err := h.registry.Close(); err != nil {
		return err
	}
	reg, err := eventgate.NewRegistry(h.loop, h.regOpts...)
	if err != nil {
		return err
	}
	h.registry = reg
	return nil
}

// run starts a dispatch loop, hands it to fn together with the errgroup
// producers should join, and tears everything down when fn returns.
func (a *app) run(ctx context.Context, fn func(ctx context.Context, h *host, g *errgroup.Group) error) error {
	st, err := a.settings.OpenStore()
	if err != nil {
		return err
	}
	defer st.Close()

	l := loop.New(a.settings.LoopOptions(a.logger)...)
	regOpts := a.settings.RegistryOptions(a.logger, st)
	reg, err := eventgate.NewRegistry(l, regOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := l.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	h := &host{loop: l, registry: reg, store: st, regOpts: regOpts}
	runErr := fn(gctx, h, g)

	closeErr := l.Do(gctx, func() { _ = h.registry.Close() })
	_ = l.Close()
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil && closeErr != nil && !errors.Is(closeErr, context.Canceled) {
		runErr = closeErr
	}
	return runErr
}
