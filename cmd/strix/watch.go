package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/casualjim/strix/internal/broker"
	"github.com/casualjim/strix/internal/console"
	"github.com/casualjim/strix/pkg/natsx"
	"github.com/casualjim/strix/telemetry"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
)

var (
	watchTelemetry bool
	watchVerbose   bool

	watchCmd = &cobra.Command{
		Use:   "watch [session]",
		Short: "Follow the envelopes of a session, or run telemetry, over NATS",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchTelemetry, "telemetry", false, "print run telemetry instead of session envelopes")
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "print every envelope payload")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !watchTelemetry && len(args) == 0 {
		return fmt.Errorf("a session id is required unless --telemetry is set")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	nc, err := natsx.NewClient(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer nc.Close()

	out := cmd.OutOrStdout()
	if watchTelemetry {
		sub, err := telemetry.Subscribe(nc, cfg.NATS.Subject, func(ev telemetry.Event) {
			fmt.Fprintf(out, "%s %s %s rounds=%d latency=%dms\n",
				color.CyanString(ev.RunID), ev.Mode, ev.Status, ev.Rounds, ev.LatencyMS)
			if watchVerbose {
				pp.Fprintln(out, ev.Audit)
			}
		})
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
		<-ctx.Done()
		return nil
	}

	var popts []console.Option
	if watchVerbose {
		popts = append(popts, console.Verbose())
	}
	printer, err := console.New(out, popts...)
	if err != nil {
		return err
	}
	sub, err := broker.NATS(nc).Topic(ctx, args[0]).Subscribe(ctx, printer)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	fmt.Fprintf(out, "watching %s\n", broker.Subject(args[0]))
	<-ctx.Done()
	return nil
}
