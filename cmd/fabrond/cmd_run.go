package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fabron-network/fabron/pkg/config"
	"github.com/fabron-network/fabron/pkg/controller"
	"github.com/fabron-network/fabron/pkg/metrics"
	"github.com/fabron-network/fabron/pkg/ofproto/replay"
	"github.com/fabron-network/fabron/pkg/statemirror"
	"github.com/fabron-network/fabron/pkg/util"
)

func newRunCmd() *cobra.Command {
	var replayFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller",
		Long: `Run the fabric controller until interrupted.

The event source is a replay script (--replay or replay.script in the
configuration). The metrics endpoint and the optional Redis mirror run
alongside the control loop and shut down with it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			if replayFlag != "" {
				cfg.Replay.Script = replayFlag
			}
			if cfg.Replay.Script == "" {
				return fmt.Errorf("no event source: set --replay or replay.script")
			}
			return runController(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&replayFlag, "replay", "", "Event script to drive the controller with")
	return cmd
}

func runController(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	script, err := replay.LoadScript(cfg.Replay.Script)
	if err != nil {
		return err
	}
	source := replay.NewSource(script)

	exporter, err := metrics.NewExporter(nil)
	if err != nil {
		return fmt.Errorf("metrics setup: %w", err)
	}
	exporter.SetRoleHints(cfg.Roles.Hints())

	var mirror controller.Mirror
	var stateMirror *statemirror.Mirror
	if cfg.Mirror.Addr != "" {
		stateMirror = statemirror.New(cfg.Mirror.Addr, cfg.Mirror.DB, cfg.Mirror.QueueSize)
		if err := stateMirror.Ping(ctx); err != nil {
			util.WithOperation("fabrond").Warnf("state mirror unreachable, continuing without: %v", err)
			stateMirror = nil
		} else {
			mirror = stateMirror
		}
	}

	ctrl := controller.New(controller.Config{
		ReconcileInterval: cfg.Controller.ReconcileInterval,
		StatsInterval:     cfg.Controller.StatsInterval,
		FlowIdleTimeout:   cfg.Controller.FlowIdleTimeout,
		FlowHardTimeout:   cfg.Controller.FlowHardTimeout,
	}, source, exporter, mirror)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.NewServer(cfg.Metrics.Listen, exporter).Run(ctx)
	})
	if stateMirror != nil {
		g.Go(func() error {
			if err := stateMirror.Run(ctx); err != context.Canceled {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		// The source closes its channel when the script ends. The control
		// loop then returns nil while the metrics endpoint keeps serving
		// until a signal arrives.
		return source.Run(ctx)
	})
	g.Go(func() error {
		err := ctrl.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
