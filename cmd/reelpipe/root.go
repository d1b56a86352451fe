package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"reelpipe/internal/config"
	"reelpipe/internal/di"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	output     string
	noAWS      bool

	boot   config.Bootstrap
	diOpts []di.Option
}

func (c *cli) jsonOutput() bool {
	return c.output == "json"
}

// container builds the dependency graph for one command invocation.
func (c *cli) container(ctx context.Context) (*di.Container, error) {
	container, err := di.BuildContainer(ctx, c.boot, c.diOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return container, nil
}

func newRootCmd(opts ...di.Option) *cobra.Command {
	c := &cli{diOpts: opts}

	rootCmd := &cobra.Command{
		Use:   "reelpipe",
		Short: "Configuration and provider orchestration for the video pipeline",
		Long: fmt.Sprintf(`%s

Resolves layered configuration (runtime overrides, SSM, Secrets Manager, S3,
environment, defaults), picks healthy AI providers per service category and
estimates generation cost.

%s
  reelpipe serve --addr :8090
  reelpipe config get ai.models.video.primary.provider
  reelpipe config namespace ai.models
  reelpipe select video --exclude runway
  reelpipe estimate --video-provider runway --video-seconds 10`,
			bold("reelpipe"), bold("Examples:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			boot, err := config.LoadBootstrap(c.configPath)
			if err != nil {
				return err
			}
			if c.noAWS {
				boot.DisableAWS = true
			}
			c.boot = boot
			if !isTTY() || c.jsonOutput() {
				color.NoColor = true
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "bootstrap file (default: ./reelpipe.yaml)")
	flags.StringVarP(&c.output, "output", "o", "text", "output format: text or json")
	flags.BoolVar(&c.noAWS, "no-aws", false, "skip AWS-backed configuration sources")

	rootCmd.AddCommand(
		newServeCmd(c),
		newConfigCmd(c),
		newSelectCmd(c),
		newEstimateCmd(c),
	)
	return rootCmd
}
