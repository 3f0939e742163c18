package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/domain/objtree"
)

var diagAll bool

var diagCmd = &cobra.Command{
	Use:   "diag <file.dme>",
	Short: "Show load diagnostics",
	Long:  "Prints the errors and warnings found while loading. Exits 3 when there are errors.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiag,
}

func init() {
	diagCmd.Flags().BoolVarP(&diagAll, "all", "a", false, "Include info and hint diagnostics")
}

func runDiag(cmd *cobra.Command, args []string) error {
	s, err := openSession(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	err = s.With(func(_ *boundary.TreeHandle, ctx *boundary.ContextHandle) error {
		return ctx.ForEachDiagnostic(func(d objtree.Diagnostic) error {
			if !diagAll && d.Severity > objtree.SeverityWarning {
				return nil
			}
			where, err := ctx.FormatLocation(d.Location)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, formatDiagnostic(d, where))
			return nil
		})
	})
	if err != nil {
		return err
	}

	sum := s.Summary()
	fmt.Fprintln(out, formatSummary(sum))
	if sum.Errors > 0 {
		return &diagnosticsError{errors: sum.Errors}
	}
	return nil
}
