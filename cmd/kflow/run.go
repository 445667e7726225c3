package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/birdayz/kflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline until its sources are exhausted or it is interrupted",
		Long: `Run the pipeline described by --config.

The first SIGINT or SIGTERM stops the sources; the pipeline drains and
commits before exiting. A second signal aborts immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg, metricsAddr, cmd)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func runPipeline(ctx context.Context, cfg Config, metricsAddr string, cmd *cobra.Command) error {
	log, err := cfg.logger()
	if err != nil {
		return err
	}
	backend, err := cfg.backend(log.With("component", "storage"))
	if err != nil {
		return err
	}
	p, err := cfg.build()
	if err != nil {
		return err
	}

	opts := []kflow.Option{
		kflow.WithStorage(backend),
		kflow.WithChannelCapacity(cfg.ChannelCapacity),
		kflow.WithCheckpointPolicy(cfg.policy()),
		kflow.WithLogger(log),
	}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		srv, err := serveMetrics(metricsAddr, reg, log)
		if err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		defer func() {
			if err := srv.shutdown(); err != nil {
				log.Warn("Failed to stop metrics server", "error", err)
			}
		}()
		opts = append(opts, kflow.WithMetricsRegisterer(reg))
	}

	exec, err := kflow.NewExecutor(p.dag, cfg.Dir, opts...)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := exec.Start(runCtx); err != nil {
		return err
	}
	log.Info("Pipeline started", "run", exec.RunID(), "dir", cfg.Dir, "storage", backend.Name())

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
		case <-done:
			return
		}
		log.Info("Stopping, interrupt again to abort")
		exec.Stop()
		stopSignals()

		again, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		select {
		case <-again.Done():
			cancel()
		case <-done:
		}
	}()

	err = exec.Join()
	close(done)
	if err != nil {
		return err
	}

	if p.counting != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "sink received %d operations\n", p.counting.Count())
	}
	return printConsistency(cmd, p, cfg, backend)
}
