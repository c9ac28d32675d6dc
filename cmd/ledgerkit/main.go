package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jask/ledgerkit/internal/service"
)

func main() {
	// a missing .env is normal
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps command errors to process status: 2 for a strict-mode
// abort, 1 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, service.ErrStrictAbort):
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
}

func newRootCmd() *cobra.Command {
	var a *app
	root := &cobra.Command{
		Use:           "ledgerkit",
		Short:         "Ingest bank statements into a categorized ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(cmd.Context())
			if err != nil {
				return err
			}
			cmd.SetContext(a.ctx)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	get := func() *app { return a }
	root.AddCommand(
		newImportCmd(get),
		newRulesCmd(get),
		newRecategorizeCmd(get),
		newCategorizeCmd(get),
		newExportCmd(get),
		newDBCmd(get),
	)
	return root
}
