package cmd

import (
	"github.com/spf13/cobra"

	"github.com/docbench/docbench/internal/step"
)

var closedConcurrency string

var closedCmd = &cobra.Command{
	Use:   "closed",
	Short: "Escalate concurrency through a geometric ramp using the closed-loop generator",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd, step.ShapeClosed, closedConcurrency)
	},
}

func init() {
	closedCmd.Flags().StringVar(&closedConcurrency, "concurrency", "1..64x2", "concurrency ramp plan, start..endxfactor")
}
