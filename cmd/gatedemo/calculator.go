package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
)

type addKey struct{ a, b int }

// CachingCalculator adds numbers slowly and remembers the results. Cached
// results are posted immediately.
type CachingCalculator struct {
	delay time.Duration

	mu    sync.Mutex
	cache map[addKey]int
}

// NewCachingCalculator creates a calculator taking delay per uncached sum.
func NewCachingCalculator(delay time.Duration) *CachingCalculator {
	return &CachingCalculator{
		delay: delay,
		cache: make(map[addKey]int),
	}
}

// Add posts a+b to rx, after the calculation delay unless the result is
// cached. The calculation joins g and gives up when ctx is done.
func (c *CachingCalculator) Add(ctx context.Context, g *errgroup.Group, a, b int, rx eventgate.Receiver[int]) {
	if sum, ok := c.cached(a, b); ok {
		rx.PostEvent(sum)
		return
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.delay):
		}
		sum := a + b
		c.mu.Lock()
		c.cache[addKey{a, b}] = sum
		c.mu.Unlock()
		rx.PostEvent(sum)
		return nil
	})
}

func (c *CachingCalculator) cached(a, b int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum, ok := c.cache[addKey{a, b}]
	return sum, ok
}

func newCalculatorCmd(a *app) *cobra.Command {
	var (
		delay time.Duration
		x, y  int
	)
	cmd := &cobra.Command{
		Use:   "calculator",
		Short: "Deliver a slow result to an owner that is recreated while it computes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("delay") {
				delay = a.settings.Samples.CalculatorDelay
			}
			return a.run(cmd.Context(), func(ctx context.Context, h *host, g *errgroup.Group) error {
				calc := NewCachingCalculator(delay)
				return runCalculatorScenario(ctx, h, g, calc, x, y, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "calculation time per uncached sum (default from samples.calculator_delay)")
	cmd.Flags().IntVarP(&x, "a", "a", 2, "first operand")
	cmd.Flags().IntVarP(&y, "b", "b", 3, "second operand")
	return cmd
}

// runCalculatorScenario asks for a sum, tears the owner instance down
// before the result arrives, and shows the recreated instance receiving
// it. A second request is answered from the cache.
func runCalculatorScenario(ctx context.Context, h *host, g *errgroup.Group, calc *CachingCalculator, x, y int, out io.Writer) error {
	id := h.registry.NewOwnerID()
	results := make(chan int, 2)
	listener := func(instance int) eventgate.Listener[int] {
		return eventgate.ListenerFunc[int](func(sum int) {
			fmt.Fprintf(out, "instance %d: %d + %d = %d\n", instance, x, y, sum)
			results <- sum
		})
	}

	var err error
	step := func(name string, fn func() error) error {
		if doErr := h.loop.Do(ctx, func() {
			fmt.Fprintf(out, "-- %s\n", name)
			err = fn()
		}); doErr != nil {
			return doErr
		}
		return err
	}
	await := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-results:
			return nil
		}
	}

	if err := step("create owner and request sum", func() error {
		owner, err := h.registry.Create(id)
		if err != nil {
			return err
		}
		if err := h.registry.Resume(id); err != nil {
			return err
		}
		rx, err := eventgate.RegisterListener(owner.Session, "sum", true, listener(1))
		if err != nil {
			return err
		}
		calc.Add(ctx, g, x, y, rx)
		return nil
	}); err != nil {
		return err
	}

	if err := step("owner instance torn down while calculating", func() error {
		if err := h.registry.Pause(id); err != nil {
			return err
		}
		return h.registry.Detach(id, false)
	}); err != nil {
		return err
	}

	if err := step("owner instance recreated", func() error {
		owner, err := h.registry.Restore(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "session new=%t restored=%t\n", owner.Session.IsNew(), owner.Session.IsRestored())
		if _, err := eventgate.RegisterListener(owner.Session, "sum", true, listener(2)); err != nil {
			return err
		}
		return h.registry.Resume(id)
	}); err != nil {
		return err
	}
	if err := await(); err != nil {
		return err
	}

	if err := step("request the same sum again", func() error {
		owner, err := h.registry.Owner(id)
		if err != nil {
			return err
		}
		rx, err := eventgate.RegisterListener(owner.Session, "sum", true, listener(2))
		if err != nil {
			return err
		}
		calc.Add(ctx, g, x, y, rx)
		return nil
	}); err != nil {
		return err
	}
	if err := await(); err != nil {
		return err
	}

	return step("finish owner", func() error {
		return h.registry.Detach(id, true)
	})
}
