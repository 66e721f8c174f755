package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
)

// Tick is posted by TimingService on every interval.
type Tick struct {
	N       int
	Elapsed time.Duration
}

// TimingService broadcasts a Tick to every registered receiver on each
// interval. Receivers of destroyed owners drop out on their own.
type TimingService struct {
	interval  time.Duration
	receivers eventgate.ReceiverGroup[Tick]
}

// NewTimingService creates a service ticking every interval.
func NewTimingService(interval time.Duration) *TimingService {
	return &TimingService{interval: interval}
}

// AddReceiver starts sending ticks to r.
func (s *TimingService) AddReceiver(r eventgate.Receiver[Tick]) {
	s.receivers.Register(r)
}

// RemoveReceiver stops sending ticks to r.
func (s *TimingService) RemoveReceiver(r eventgate.Receiver[Tick]) {
	s.receivers.Unregister(r)
}

// Receivers returns the number of registered receivers.
func (s *TimingService) Receivers() int {
	return s.receivers.Len()
}

// Run ticks until ctx is done.
func (s *TimingService) Run(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.receivers.Broadcast(Tick{N: n, Elapsed: now.Sub(start)})
		}
	}
}

func newTimingCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		ticks    int
	)
	cmd := &cobra.Command{
		Use:   "timing",
		Short: "Broadcast ticks to an owner that pauses, is recreated and finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = a.settings.Samples.TimingInterval
			}
			return a.run(cmd.Context(), func(ctx context.Context, h *host, g *errgroup.Group) error {
				svc := NewTimingService(interval)
				g.Go(func() error { return svc.Run(ctx) })
				return runTimingScenario(ctx, h, svc, interval*time.Duration(ticks), cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "tick interval (default from samples.timing_interval)")
	cmd.Flags().IntVar(&ticks, "ticks", 3, "ticks per scenario phase")
	return cmd
}

// runTimingScenario drives one owner through resume, pause, recreation and
// finish while the timing service keeps broadcasting.
func runTimingScenario(ctx context.Context, h *host, svc *TimingService, phase time.Duration, out io.Writer) error {
	id := h.registry.NewOwnerID()
	listener := func(instance int) eventgate.Listener[Tick] {
		return eventgate.ListenerFunc[Tick](func(t Tick) {
			fmt.Fprintf(out, "instance %d: tick %d (%s)\n", instance, t.N, t.Elapsed.Round(time.Millisecond))
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
	wait := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(phase):
			return nil
		}
	}

	if err := step("create and resume owner "+id, func() error {
		owner, err := h.registry.Create(id)
		if err != nil {
			return err
		}
		// Ticks are only interesting while someone is watching.
		rx, err := eventgate.RegisterListener(owner.Session, "elapsed", false, listener(1))
		if err != nil {
			return err
		}
		svc.AddReceiver(rx)
		return h.registry.Resume(id)
	}); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}

	if err := step("pause (ticks are dropped)", func() error {
		return h.registry.Pause(id)
	}); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}

	if err := step("recreate owner instance", func() error {
		if err := h.registry.Detach(id, false); err != nil {
			return err
		}
		owner, err := h.registry.Restore(id)
		if err != nil {
			return err
		}
		if _, err := eventgate.RegisterListener(owner.Session, "elapsed", false, listener(2)); err != nil {
			return err
		}
		return h.registry.Resume(id)
	}); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}

	return step("finish owner", func() error {
		if err := h.registry.Detach(id, true); err != nil {
			return err
		}
		fmt.Fprintf(out, "timing service receivers: %d\n", svc.Receivers())
		return nil
	})
}
