package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newDBCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete all stored data, keeping the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			if err := get().maint.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database reset")
			return nil
		},
	}
	reset.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	cmd.AddCommand(reset)
	return cmd
}
