package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/profile"
)

var profilesExport string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List built-in profiles",
	Long: `List the built-in hourly profiles with the hour of peak weight.
With --export NAME, print that preset as a YAML profile file to start from.`,
	RunE: runProfiles,
}

func init() {
	profilesCmd.Flags().StringVar(&profilesExport, "export", "", "Print the named preset as YAML")
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if profilesExport != "" {
		p, ok := profile.Lookup(profilesExport)
		if !ok {
			return fmt.Errorf("unknown profile %q", profilesExport)
		}
		data, err := profile.Encode(p, 0)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPEAK HOUR\tSHARE AT PEAK\tIDLE HOURS")
	for _, name := range profile.Names() {
		p, _ := profile.Lookup(name)
		peak, idle := 0, 0
		for h, w := range p.Weights {
			if w > p.Weights[peak] {
				peak = h
			}
			if w == profile.NoRate {
				idle++
			}
		}
		share := p.Weights[peak] / p.Weights.Sum()
		fmt.Fprintf(tw, "%s\t%02d:00\t%.1f%%\t%d\n", name, peak, share*100, idle)
	}
	return tw.Flush()
}
