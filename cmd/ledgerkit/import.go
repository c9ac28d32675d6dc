package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/ledgerkit/internal/service"
)

func newImportCmd(get func() *app) *cobra.Command {
	var opts service.ImportOptions
	var manifest string
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Ingest statement files for one bank",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if !cmd.Flags().Changed("strict") {
				opts.Strict = a.cfg.Import.Strict
			}
			sum, runErr := a.ingest.ImportMany(cmd.Context(), args, opts)

			out := cmd.OutOrStdout()
			for _, f := range sum.Files {
				fmt.Fprintf(out, "%s\t%s\tread=%d ingested=%d duplicates=%d rejected=%d\n",
					f.File, f.Status, f.Read, f.Ingested, f.Duplicates, f.Rejected)
				for _, rj := range f.Rejections {
					fmt.Fprintf(out, "  %s: %s\n", rj.Ref, rj.Reason)
				}
				if f.Error != "" {
					fmt.Fprintf(out, "  error: %s\n", f.Error)
				}
				if r := f.Reconciliation; r != nil {
					fmt.Fprintf(out, "  reconciled: matched=%d/%d only_statement=%d only_reference=%d differences=%d\n",
						r.Matched, r.Total, len(r.Only), len(r.ReferenceOnly), len(r.Differences))
				}
			}
			fmt.Fprintln(out, sum.String())

			if manifest == "" && a.cfg.Import.ManifestDir != "" {
				manifest = service.ManifestPath(a.cfg.Import.ManifestDir, sum.StartedAt)
			}
			if manifest != "" {
				if sum.FinishedAt.IsZero() {
					sum.FinishedAt = time.Now().UTC()
				}
				if err := service.WriteManifest(manifest, sum); err != nil {
					a.log.Error().Err(err).Str("manifest", manifest).Msg("manifest not written")
				} else {
					fmt.Fprintln(out, "manifest:", manifest)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&opts.BankID, "bank", "", "bank profile id")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "abort on the first file or row error")
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "XML statement to reconcile against")
	cmd.Flags().StringVar(&manifest, "manifest", "", "write the run manifest to this path")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}
