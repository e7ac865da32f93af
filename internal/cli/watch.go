package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/feed"
	"github.com/roach88/ledgerd/internal/ir"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	As       string
	From     int64
	Once     bool
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the transition feed",
		Long: `Follow committed transitions on the Redis feed.

Without --as, reads the ledger-wide stream from --from onwards. Stream
events name the contracts touched but carry no payloads. With --as,
subscribes to that party's channel, which carries the payloads of the
produced contracts the party is a stakeholder of.

Requires a feed section in the config file. Stops on Ctrl-C.

Examples:
  ledgerd watch -c ledgerd.yml
  ledgerd watch -c ledgerd.yml --from 120 --once
  ledgerd watch -c ledgerd.yml --as emma`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "follow one party's channel")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "print stream events after this seq")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "print what the stream holds and exit")
	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Second, "stream poll interval")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Config.Feed == nil {
		return NewExitError(ExitCommandError, "no feed configured: add a feed section to the config file")
	}
	if opts.As != "" && opts.Once {
		return NewExitError(ExitCommandError, "--once applies only to the stream, not to --as")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			opts.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	pub, err := openPublisher(ctx, opts.Config.Feed, opts.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect feed", err)
	}
	defer pub.Close()

	if opts.As != "" {
		err = watchParty(ctx, pub, ir.Party(opts.As), out)
	} else {
		err = watchStream(ctx, pub, opts, out)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "feed error", err)
	}
	return nil
}

// watchStream polls the stream, printing each event once.
func watchStream(ctx context.Context, pub *feed.Publisher, opts *WatchOptions, out *OutputFormatter) error {
	after := opts.From
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		events, err := pub.Read(ctx, after, 100)
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := printEvent(out, e); err != nil {
				return err
			}
			after = e.Seq
		}
		if len(events) == 100 {
			continue
		}
		if opts.Once {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// watchParty prints the views published on a party's channel.
func watchParty(ctx context.Context, pub *feed.Publisher, party ir.Party, out *OutputFormatter) error {
	sub, err := pub.Subscribe(ctx, party)
	if err != nil {
		return err
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			view, err := feed.DecodeView(msg.Payload)
			if err != nil {
				return err
			}
			if err := printView(out, view); err != nil {
				return err
			}
		}
	}
}

func printEvent(out *OutputFormatter, e feed.Event) error {
	if out.JSON() {
		return json.NewEncoder(out.Writer).Encode(e)
	}
	cyan.Fprintf(out.Writer, "seq %d", e.Seq)
	out.Printf(" %s %s by %s", e.Timestamp.Format(time.RFC3339), eventAction(e), e.ActingParty)
	if len(e.Consumed) > 0 {
		out.Printf(" consumed %v", e.Consumed)
	}
	if len(e.Produced) > 0 {
		ids := make([]ir.ContractID, len(e.Produced))
		for i, h := range e.Produced {
			ids[i] = h.ID
		}
		out.Printf(" produced %v", ids)
	}
	out.Printf("\n")
	return nil
}

func printView(out *OutputFormatter, v feed.PartyView) error {
	if out.JSON() {
		return json.NewEncoder(out.Writer).Encode(v)
	}
	if err := printEvent(out, v.Event); err != nil {
		return err
	}
	for _, c := range v.Contracts {
		out.Printf("  %s %s %s\n", c.ID, c.Template, formatRecord(c.Payload))
	}
	return nil
}

func eventAction(e feed.Event) string {
	if e.Kind == ir.TransitionExercise {
		return e.Template + "." + e.Choice
	}
	return e.Template + ".create"
}
