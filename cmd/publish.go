package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shipway/shipway/internal/build"
	"github.com/shipway/shipway/internal/config"
	"github.com/shipway/shipway/internal/pipeline"
	"github.com/shipway/shipway/internal/trigger"
	"github.com/shipway/shipway/pkg/logger"
)

func newPublishCmd() *cobra.Command {
	var noEngineProbe bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Run the full publish pipeline",
		Long: `Derives tags and labels from the CI trigger environment, builds the
image, pushes it unless the trigger is a pull request, and signs every
release tag against the pushed digest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.GetLogger().SetLogLevel(cfg.LogLevel)

			opts := []pipeline.Option{}
			if !noEngineProbe {
				if engine, err := build.NewEngineClient(); err == nil {
					opts = append(opts, pipeline.WithBuilder(
						build.New(cfg.Build, build.WithEngineClient(engine))))
				} else {
					logger.Warn("Docker engine client unavailable, skipping probe", "error", err)
				}
			}

			p := pipeline.New(cfg, opts...)
			sum, err := p.Run(cmd.Context(), trigger.FromEnv())
			if err != nil {
				return err
			}
			logger.Info("Run finished",
				"run_id", sum.RunID,
				"outcome", sum.Outcome,
				"tags", len(sum.Tags),
				"signed", len(sum.Signed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noEngineProbe, "no-engine-probe", false, "Skip the docker engine availability probe")

	return cmd
}
