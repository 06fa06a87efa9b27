package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinbench/recoeval/internal/validation"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec>",
		Short: "Validate a run spec file against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			errs, err := validation.ValidateRunSpecFile(args[0])
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
				}
				return fmt.Errorf("%s: %d schema violations", args[0], len(errs))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		},
	}
	return cmd
}
