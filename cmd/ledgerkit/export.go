package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/ledgerkit/internal/service"
)

func newExportCmd(get func() *app) *cobra.Command {
	var out string
	var opts service.ExportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored transactions as a Firefly III import CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := get().export.ExportFile(cmd.Context(), out, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output CSV path")
	cmd.Flags().StringVar(&opts.BankID, "bank", "", "only this bank")
	cmd.Flags().StringVar(&opts.Period, "period", "", "only this statement period (YYYY-MM)")
	cmd.Flags().BoolVar(&opts.Normalized, "normalized", false, "write normalized descriptions")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
