package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
)

// SendDataService simulates sending data to a server. The empty response
// is posted to the caller's receiver once the server answers.
type SendDataService struct {
	latency time.Duration
	logger  *slog.Logger
	sends   errgroup.Group
}

// NewSendDataService creates a service whose server answers after latency.
func NewSendDataService(latency time.Duration, logger *slog.Logger) *SendDataService {
	return &SendDataService{latency: latency, logger: logger}
}

// Send sends data and posts to rx when the response arrives. The send is
// abandoned when ctx is done.
func (s *SendDataService) Send(ctx context.Context, data string, rx eventgate.Receiver[struct{}]) {
	if s.logger != nil {
		s.logger.Debug("sending data to server", slog.String("data", data))
	}
	s.sends.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.latency):
		}
		rx.PostEvent(struct{}{})
		return nil
	})
}

// Wait blocks until every send has been answered or abandoned.
func (s *SendDataService) Wait() error {
	return s.sends.Wait()
}

func newSendCmd(a *app) *cobra.Command {
	var (
		latency time.Duration
		restart bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Block an owner on a server response while it is recreated or its process restarts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("latency") {
				latency = a.settings.Samples.SendLatency
			}
			return a.run(cmd.Context(), func(ctx context.Context, h *host, _ *errgroup.Group) error {
				svc := NewSendDataService(latency, a.logger)
				return runSendScenario(ctx, h, svc, restart, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().DurationVar(&latency, "latency", time.Second, "server response time (default from samples.send_latency)")
	cmd.Flags().BoolVar(&restart, "restart", false, "lose the session by restarting the registry while sending")
	return cmd
}

// runSendScenario shows a blocking "please wait" state that must be
// cleared either by the response or, when the session was lost and the
// response with it, by noticing that the session was restored.
func runSendScenario(ctx context.Context, h *host, svc *SendDataService, restart bool, out io.Writer) error {
	id := h.registry.NewOwnerID()
	responses := make(chan struct{}, 1)
	listener := func(instance int) eventgate.Listener[struct{}] {
		return eventgate.ListenerFunc[struct{}](func(struct{}) {
			fmt.Fprintf(out, "instance %d: response received, closing dialog\n", instance)
			responses <- struct{}{}
		})
	}
	printFlags := func(owner eventgate.Owner) {
		s := owner.Session
		fmt.Fprintf(out, "session new=%t restored=%t new_or_restored=%t\n", s.IsNew(), s.IsRestored(), s.IsNewOrRestored())
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
	// reattach registers the second instance's listener and reports
	// whether the response can still arrive.
	reattach := func(owner eventgate.Owner) error {
		printFlags(owner)
		if _, err := eventgate.RegisterListener(owner.Session, "sendData", true, listener(2)); err != nil {
			return err
		}
		if owner.Session.IsRestored() {
			fmt.Fprintln(out, "session restored, the response may be lost: closing dialog")
		} else {
			fmt.Fprintln(out, "session survived: keeping dialog until the response arrives")
		}
		return h.registry.Resume(id)
	}

	if err := step("create owner and send data", func() error {
		owner, err := h.registry.Create(id)
		if err != nil {
			return err
		}
		printFlags(owner)
		rx, err := eventgate.RegisterListener(owner.Session, "sendData", true, listener(1))
		if err != nil {
			return err
		}
		if err := h.registry.Resume(id); err != nil {
			return err
		}
		fmt.Fprintln(out, "dialog: sending data... please wait")
		svc.Send(ctx, "Hello World", rx)
		return nil
	}); err != nil {
		return err
	}

	if restart {
		if err := step("process restarted while sending", func() error {
			if err := h.restart(); err != nil {
				return err
			}
			owner, err := h.registry.Restore(id)
			if err != nil {
				return err
			}
			return reattach(owner)
		}); err != nil {
			return err
		}
		// The response goes to the destroyed receiver of the lost session.
		if err := svc.Wait(); err != nil {
			return err
		}
		if err := h.loop.Flush(ctx); err != nil {
			return err
		}
		select {
		case <-responses:
			return fmt.Errorf("response delivered to a restored session")
		default:
		}
		fmt.Fprintln(out, "response to the lost session was dropped")
	} else {
		if err := step("owner instance recreated while sending", func() error {
			if err := h.registry.Pause(id); err != nil {
				return err
			}
			if err := h.registry.Detach(id, false); err != nil {
				return err
			}
			owner, err := h.registry.Restore(id)
			if err != nil {
				return err
			}
			return reattach(owner)
		}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-responses:
		}
	}

	return step("finish owner", func() error {
		return h.registry.Detach(id, true)
	})
}
