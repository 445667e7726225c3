package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/kstate"
	"github.com/spf13/cobra"
)

func newInspectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show per source checkpoint consistency of a state directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
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
			return printConsistency(cmd, p, cfg, backend)
		},
	}
}

func printConsistency(cmd *cobra.Command, p *pipeline, cfg Config, backend kstate.Backend) error {
	m, err := kflow.NewMetadataManager(p.dag, cfg.Dir, kflow.WithStorage(backend))
	if err != nil {
		return err
	}
	defer m.Close()

	consistency := m.CheckpointConsistency()
	resume := m.ResumeOffsets()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tEMITTED\tCONSISTENCY\tRESUME AFTER")
	for _, h := range p.dag.Sources() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", h, m.Emitted(h), consistency[h], resume[h])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return m.Close()
}
