package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/boundary"
)

var varsInherited bool

var varsCmd = &cobra.Command{
	Use:   "vars <file.dme> <type>",
	Short: "List the vars written at a type",
	Long: "Prints each var declared or overridden at <type> in source order. " +
		"With --inherited, ancestors follow, nearest first.",
	Args: cobra.ExactArgs(2),
	RunE: runVars,
}

func init() {
	varsCmd.Flags().BoolVarP(&varsInherited, "inherited", "i", false, "Also list vars written at ancestors")
}

func runVars(cmd *cobra.Command, args []string) error {
	return withType(args[0], args[1], func(n *boundary.NodeHandle, ctx *boundary.ContextHandle) error {
		return eachAncestor(n, varsInherited, func(n *boundary.NodeHandle) error {
			return printVars(cmd.OutOrStdout(), n, ctx)
		})
	})
}

func printVars(w io.Writer, n *boundary.NodeHandle, ctx *boundary.ContextHandle) error {
	path, err := n.Path()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, colorPath(shownPath(path)))
	return n.ForEachVariable(func(_ string, v *boundary.VarHandle) error {
		defer v.Free()
		entry, err := v.Entry()
		if err != nil {
			return err
		}
		where, err := ctx.FormatLocation(entry.Value.Location)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s  %s\n", formatVar(entry), colorDim(where))
		return nil
	})
}

// eachAncestor calls fn on n and, when up is set, on each of its ancestors
// in turn up to the root.
func eachAncestor(n *boundary.NodeHandle, up bool, fn func(*boundary.NodeHandle) error) error {
	if err := fn(n); err != nil || !up {
		return err
	}
	cur := n
	for {
		parent, err := cur.Parent()
		if cur != n {
			cur.Free()
		}
		if errors.Is(err, boundary.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = parent
		if err := fn(cur); err != nil {
			cur.Free()
			return err
		}
	}
}
