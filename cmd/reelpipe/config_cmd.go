package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"reelpipe/internal/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect resolved configuration",
	}
	cmd.AddCommand(newConfigGetCmd(c), newConfigNamespaceCmd(c))
	return cmd
}

func newConfigGetCmd(c *cli) *cobra.Command {
	var def string
	var fresh bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Resolve one key and report the source that supplied it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			fallback := config.Null()
			if cmd.Flags().Changed("default") {
				fallback = config.Parse(def)
			}
			var opts []config.GetOption
			if fresh {
				opts = append(opts, config.SkipCache())
			}

			key := args[0]
			value, source := container.Resolver.Get(cmd.Context(), key, fallback, opts...)
			if source == config.SourceNone && value.IsNull() {
				return fmt.Errorf("%s is not configured", key)
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput() {
				return writeJSON(out, map[string]any{"key": key, "value": value, "source": source.String()})
			}
			writeFields(out, map[string]string{
				"key":    key,
				"value":  green(value.String()),
				"source": gray(source.String()),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&def, "default", "", "value to return when no source has the key")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "bypass the resolution cache")
	return cmd
}

func newConfigNamespaceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "namespace <prefix>",
		Short: "List every parameter-store key under a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			values, err := container.Resolver.GetNamespace(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput() {
				return writeJSON(out, values)
			}
			if len(values) == 0 {
				fmt.Fprintln(out, yellow("no keys under "+args[0]))
				return nil
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s = %s\n", cyan(args[0]+"."+k), values[k].String())
			}
			return nil
		},
	}
}
