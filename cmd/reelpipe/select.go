package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"reelpipe/internal/aiservice"
	"reelpipe/internal/providers"
)

func newSelectCmd(c *cli) *cobra.Command {
	var exclude []string
	var strict bool

	cmd := &cobra.Command{
		Use:   "select <content|video|audio>",
		Short: "Pick the healthiest configured model for a service category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := providers.ParseCategory(args[0])
			if err != nil {
				return err
			}

			container, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			sel, err := container.Selector.SelectModel(cmd.Context(), category, aiservice.Requirements{ExcludeProviders: exclude})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput() {
				if err := writeJSON(out, sel); err != nil {
					return err
				}
			} else {
				status := green("healthy")
				if sel.Degraded {
					status = red("degraded")
				}
				writeFields(out, map[string]string{
					"category": string(sel.Category),
					"tier":     string(sel.Tier),
					"provider": bold(sel.Config.Provider),
					"model":    sel.Config.Model,
					"status":   status,
					"decision": gray(sel.DecisionID),
				})
			}

			if strict && sel.Degraded {
				return &ExitCodeError{Code: 2, Err: fmt.Errorf("no healthy %s provider, primary %s returned degraded", category, sel.Config.Provider)}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "providers to skip")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit 2 when the selection is degraded")
	return cmd
}
