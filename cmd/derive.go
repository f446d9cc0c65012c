package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/shipway/shipway/internal/config"
	"github.com/shipway/shipway/internal/derive"
	"github.com/shipway/shipway/internal/trigger"
)

func newDeriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Print derived tags, labels and sign targets without building",
		Long: `Runs only the metadata derivation stage against the current trigger
environment and prints what a publish run would build and sign. Useful
for dry-running a workflow change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			tc := trigger.FromEnv()
			res, err := derive.Derive(tc, derive.Options{
				Registry: cfg.Image.Registry,
				Image:    cfg.Image.Name,
			})
			if err != nil {
				return err
			}
			if res.Empty() {
				cmd.Printf("event %q: nothing to publish\n", tc.Event)
				return nil
			}

			cmd.Println("Tags:")
			for _, t := range res.Tags {
				cmd.Printf("  %s\n", t)
			}
			cmd.Println("Sign targets:")
			for _, t := range res.SignTargets {
				cmd.Printf("  %s\n", t)
			}
			cmd.Println("Labels:")
			keys := make([]string, 0, len(res.Labels))
			for k := range res.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				cmd.Printf("  %s\n", fmt.Sprintf("%s=%s", k, res.Labels[k]))
			}
			return nil
		},
	}
}
