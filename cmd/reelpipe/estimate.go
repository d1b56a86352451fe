package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reelpipe/internal/cost"
)

type estimateFlags struct {
	contentProvider string
	contentTokens   int64
	prompt          string

	videoProvider string
	videoSeconds  float64

	audioEngine  string
	audioSeconds float64
	audioText    string
}

func (f estimateFlags) usage() cost.GenerationUsage {
	var u cost.GenerationUsage
	if f.contentProvider != "" || f.contentTokens > 0 || f.prompt != "" {
		u.Content = &cost.Usage{Provider: f.contentProvider, Tokens: f.contentTokens, Prompt: f.prompt}
	}
	if f.videoProvider != "" || f.videoSeconds > 0 {
		u.Video = &cost.Usage{Provider: f.videoProvider, DurationSeconds: f.videoSeconds}
	}
	if f.audioEngine != "" || f.audioSeconds > 0 || f.audioText != "" {
		u.Audio = &cost.Usage{Engine: f.audioEngine, DurationSeconds: f.audioSeconds, Text: f.audioText}
	}
	return u
}

func newEstimateCmd(c *cli) *cobra.Command {
	var f estimateFlags

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost of one generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usage := f.usage()
			if usage.Content == nil && usage.Video == nil && usage.Audio == nil {
				return errors.New("nothing to estimate: pass content, video or audio flags")
			}

			container, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			est, err := container.Estimator.EstimateGeneration(cmd.Context(), usage)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput() {
				return writeJSON(out, est)
			}
			for _, comp := range est.Components {
				fmt.Fprintf(out, "%-8s %s  %s\n", comp.Service, green(fmt.Sprintf("$%.4f", comp.EstimatedCost)),
					gray(fmt.Sprintf("%s %.6g x %.4g (%s)", comp.Details.Rate.Provider, comp.Details.Quantity, comp.Details.Rate.PricePerUnit, comp.Details.Basis)))
			}
			fmt.Fprintf(out, "%-8s %s\n", bold("total"), bold(fmt.Sprintf("$%.2f", est.Total)))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.contentProvider, "content-provider", "", "content provider rate to apply")
	flags.Int64Var(&f.contentTokens, "content-tokens", 0, "token count")
	flags.StringVar(&f.prompt, "prompt", "", "prompt text to count tokens from")
	flags.StringVar(&f.videoProvider, "video-provider", "", "video provider rate to apply")
	flags.Float64Var(&f.videoSeconds, "video-seconds", 0, "video duration in seconds")
	flags.StringVar(&f.audioEngine, "audio-engine", "", "speech engine rate to apply")
	flags.Float64Var(&f.audioSeconds, "audio-seconds", 0, "narration duration in seconds")
	flags.StringVar(&f.audioText, "audio-text", "", "narration text")
	return cmd
}
