package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"modelserve/internal/registry"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "modelserve",
		Short:         "Serve a trained model archive over HTTP with a small demo page",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newServeCmd(stderr, registry.Default()))
	root.AddCommand(&cobra.Command{
		Use:   "predictors",
		Short: "List the registered predictor names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range registry.Default().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	return root
}
