package cmd

import (
	"github.com/spf13/cobra"

	"github.com/docbench/docbench/internal/step"
)

var rateStep string

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Escalate the target arrival rate through a geometric ramp using the rate-driven generator",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd, step.ShapeRate, rateStep)
	},
}

func init() {
	rateCmd.Flags().StringVar(&rateStep, "step", "100..3200x2", "arrival-rate ramp plan (ops/sec), start..endxfactor")
}
