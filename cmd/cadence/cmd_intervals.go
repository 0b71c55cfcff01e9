package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/arrival"
)

var (
	intervalsProfile     string
	intervalsProfileFile string
	intervalsTarget      float64
	intervalsSeed        uint64
	intervalsCount       int
	intervalsAt          string
)

var intervalsCmd = &cobra.Command{
	Use:   "intervals",
	Short: "Sample gaps from the interval generator",
	Long: `Print successive inter-arrival gaps in milliseconds, each drawn from
the rate of the hour the clock is in. Use --at to sample as if it were a
different time of day.`,
	RunE: runIntervals,
}

func init() {
	addProfileFlags(intervalsCmd, &intervalsProfile, &intervalsProfileFile, &intervalsTarget, &intervalsSeed)
	intervalsCmd.Flags().IntVarP(&intervalsCount, "count", "n", 10, "Number of gaps to print")
	intervalsCmd.Flags().StringVar(&intervalsAt, "at", "", "Fixed local time of day, HH:MM")
	rootCmd.AddCommand(intervalsCmd)
}

func runIntervals(cmd *cobra.Command, args []string) error {
	p, target, sampler, err := resolveProfile(cmd, intervalsProfile, intervalsProfileFile, intervalsTarget, intervalsSeed)
	if err != nil {
		return err
	}

	now := time.Now
	if intervalsAt != "" {
		at, err := time.ParseInLocation("15:04", intervalsAt, time.Local)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		y, m, d := time.Now().Date()
		fixed := time.Date(y, m, d, at.Hour(), at.Minute(), 0, 0, time.Local)
		now = func() time.Time { return fixed }
	}

	gen, err := arrival.NewIntervalGenerator(target, p.Weights, now, sampler)
	if err != nil {
		return err
	}

	i := 0
	for gap := range gen.All() {
		if i >= intervalsCount {
			break
		}
		fmt.Fprintln(cmd.OutOrStdout(), gap)
		i++
	}
	return nil
}
