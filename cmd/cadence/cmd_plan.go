package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/cadence/internal/arrival"
	"github.com/friendsincode/cadence/internal/profile"
	"github.com/friendsincode/cadence/internal/server"
)

var (
	planProfile     string
	planProfileFile string
	planTarget      float64
	planSeed        uint64
	planFormat      string
	planOffsets     bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Draw one day's schedule and print it",
	Long: `Draw one day's schedule from a profile and print how many events
fall into each hour next to the profile's expectation.

Examples:
  # Default profile and target from the environment
  cadence plan

  # Reproducible plan as JSON, including every offset
  cadence plan --profile staff-activity --target 500 --seed 42 --format json --offsets
`,
	RunE: runPlan,
}

func init() {
	addProfileFlags(planCmd, &planProfile, &planProfileFile, &planTarget, &planSeed)
	planCmd.Flags().StringVar(&planFormat, "format", "table", "Output format: table, json or yaml")
	planCmd.Flags().BoolVar(&planOffsets, "offsets", false, "Include every millisecond offset (json and yaml only)")
	rootCmd.AddCommand(planCmd)
}

// addProfileFlags registers the flags that override the configured profile.
func addProfileFlags(cmd *cobra.Command, name, file *string, target *float64, seed *uint64) {
	cmd.Flags().StringVar(name, "profile", "", "Preset profile name (see `cadence profiles`)")
	cmd.Flags().StringVar(file, "profile-file", "", "YAML profile file")
	cmd.Flags().Float64Var(target, "target", 0, "Expected events per day")
	cmd.Flags().Uint64Var(seed, "seed", 0, "Random seed for a reproducible draw")
}

// resolveProfile applies command flags on top of the environment configuration.
func resolveProfile(cmd *cobra.Command, name, file string, target float64, seed uint64) (profile.Profile, float64, *arrival.Sampler, error) {
	if err := loadConfig(); err != nil {
		return profile.Profile{}, 0, nil, err
	}
	if cmd.Flags().Changed("profile") {
		cfg.Profile, cfg.ProfileFile = name, ""
	}
	if cmd.Flags().Changed("profile-file") {
		cfg.ProfileFile = file
	}
	if cmd.Flags().Changed("target") {
		cfg.TargetCount = target
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed, cfg.HasSeed = seed, true
	}
	if err := cfg.Validate(); err != nil {
		return profile.Profile{}, 0, nil, err
	}

	p, t, err := cfg.ResolveProfile()
	if err != nil {
		return profile.Profile{}, 0, nil, err
	}
	sampler := arrival.NewSampler()
	if cfg.HasSeed {
		sampler = arrival.NewSeededSampler(cfg.Seed)
	}
	return p, t, sampler, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	p, target, sampler, err := resolveProfile(cmd, planProfile, planProfileFile, planTarget, planSeed)
	if err != nil {
		return err
	}

	schedule, rates, err := arrival.Build(sampler, target, p.Weights)
	if err != nil {
		return err
	}

	out := server.BuildPlan(p.Name, target, schedule.HourCounts(), rates)
	if planOffsets {
		out.Offsets = schedule
	}
	return renderPlan(cmd.OutOrStdout(), planFormat, out)
}

func renderPlan(w io.Writer, format string, out server.PlanResponse) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "HOUR\tPLANNED\tEXPECTED\t\n")
		for _, h := range out.Hours {
			fmt.Fprintf(tw, "%02d\t%d\t%.1f\t\n", h.Hour, h.Planned, h.Expected)
		}
		fmt.Fprintf(tw, "TOTAL\t%d\t%.1f\t\n", out.TotalPlanned, out.ExpectedTotal)
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "profile %s, target %g\n", out.Profile, out.Target)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}
