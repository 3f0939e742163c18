package cmd

import (
	"fmt"

	"github.com/ddddddO/gtree"
	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/boundary"
)

var (
	treeDepth int
	treeVars  bool
)

var treeCmd = &cobra.Command{
	Use:   "tree <file.dme> [type]",
	Short: "Show the type hierarchy",
	Long:  "Loads the environment and prints the types under [type] (default /) as a tree.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTree,
}

func init() {
	treeCmd.Flags().IntVarP(&treeDepth, "depth", "d", 0, "Max depth (0 = unlimited)")
	treeCmd.Flags().BoolVar(&treeVars, "vars", false, "Show how many vars each type writes")
}

func runTree(cmd *cobra.Command, args []string) error {
	typePath := "/"
	if len(args) > 1 {
		typePath = args[1]
	}
	return withType(args[0], typePath, func(n *boundary.NodeHandle, _ *boundary.ContextHandle) error {
		root, err := buildTree(n, treeDepth, treeVars)
		if err != nil {
			return err
		}
		return gtree.OutputFromRoot(cmd.OutOrStdout(), root)
	})
}

// buildTree mirrors the subtree under n as a gtree. The top node shows its
// full path, the rest their last segment.
func buildTree(n *boundary.NodeHandle, depth int, vars bool) (*gtree.Node, error) {
	path, err := n.Path()
	if err != nil {
		return nil, err
	}
	label, err := nodeLabel(n, shownPath(path), vars)
	if err != nil {
		return nil, err
	}
	root := gtree.NewRoot(label)
	return root, addChildren(root, n, 1, depth, vars)
}

func addChildren(parent *gtree.Node, n *boundary.NodeHandle, level, depth int, vars bool) error {
	if depth > 0 && level > depth {
		return nil
	}
	return n.ForEachChild(func(child *boundary.NodeHandle) error {
		defer child.Free()
		path, err := child.Path()
		if err != nil {
			return err
		}
		label, err := nodeLabel(child, lastSegment(path), vars)
		if err != nil {
			return err
		}
		return addChildren(parent.Add(label), child, level+1, depth, vars)
	})
}

func nodeLabel(n *boundary.NodeHandle, name string, vars bool) (string, error) {
	if !vars {
		return name, nil
	}
	count := 0
	err := n.ForEachVariable(func(_ string, v *boundary.VarHandle) error {
		count++
		return v.Free()
	})
	if err != nil {
		return "", err
	}
	if count == 0 {
		return name, nil
	}
	return fmt.Sprintf("%s (%s)", name, plural(count, "var")), nil
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
