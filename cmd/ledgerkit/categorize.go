package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecategorizeCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recategorize",
		Short: "Re-run rules and the classifier over rows without a rule or manual category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := get().cat.Recategorize(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "examined=%d updated=%d\n", res.Examined, res.Updated)
			return nil
		},
	}
}

func newCategorizeCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Manual categorization",
	}
	var reason string
	set := &cobra.Command{
		Use:   "set FINGERPRINT CATEGORY",
		Short: "Assign a category to one transaction; it will not be overwritten",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().cat.SetManual(cmd.Context(), args[0], args[1], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
			return nil
		},
	}
	set.Flags().StringVar(&reason, "reason", "", "note stored in the audit log")
	cmd.AddCommand(set)
	return cmd
}
