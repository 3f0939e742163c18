package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/boundary"
)

var (
	procsInherited bool
	procsBodies    bool
)

var procsCmd = &cobra.Command{
	Use:   "procs <file.dme> <type>",
	Short: "List the procs and verbs written at a type",
	Args:  cobra.ExactArgs(2),
	RunE:  runProcs,
}

func init() {
	procsCmd.Flags().BoolVarP(&procsInherited, "inherited", "i", false, "Also list procs written at ancestors")
	procsCmd.Flags().BoolVarP(&procsBodies, "body", "b", false, "Print the body of the last definition")
}

func runProcs(cmd *cobra.Command, args []string) error {
	return withType(args[0], args[1], func(n *boundary.NodeHandle, ctx *boundary.ContextHandle) error {
		return eachAncestor(n, procsInherited, func(n *boundary.NodeHandle) error {
			return printProcs(cmd.OutOrStdout(), n, ctx)
		})
	})
}

func printProcs(w io.Writer, n *boundary.NodeHandle, ctx *boundary.ContextHandle) error {
	path, err := n.Path()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, colorPath(shownPath(path)))
	return n.ForEachProcedure(func(_ string, p *boundary.ProcView) error {
		where := ""
		if len(p.Values) > 0 {
			last := p.Values[len(p.Values)-1]
			if where, err = ctx.FormatLocation(last.Location); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "  %s  %s\n", formatProc(p), colorDim(where))
		if procsBodies && len(p.Values) > 0 {
			if body := p.Values[len(p.Values)-1].Body; body != "" {
				fmt.Fprintln(w, indent(body, "      "))
			}
		}
		return nil
	})
}
