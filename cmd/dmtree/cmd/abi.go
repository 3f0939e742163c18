package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/adapters/native"
	"github.com/corey/dmtree/internal/app"
	"github.com/corey/dmtree/internal/boundary"
)

var abiLib string

var abiCheckCmd = &cobra.Command{
	Use:   "abi-check <file.dme>",
	Short: "Compare libdmtree against the in-process loader",
	Long: "Loads the environment through the shared library and in process, then checks " +
		"that every node and encoding agrees and that the library leaks no handles.",
	Args: cobra.ExactArgs(1),
	RunE: runABICheck,
}

func init() {
	abiCheckCmd.Flags().StringVar(&abiLib, "lib", "", "Path to "+native.LibName()+" (default: search .dmtree/lib, ~/.dmtree/lib)")
}

func runABICheck(cmd *cobra.Command, args []string) error {
	source, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if err := initLogger(source); err != nil {
		return err
	}
	libPath := abiLib
	if libPath == "" {
		libPath = native.Find(native.DefaultLibraryPaths(app.ProjectRootFor(source)))
	}
	if libPath == "" {
		return fmt.Errorf("%s not found: build ./cmd/libdmtree with -buildmode=c-shared or pass --lib", native.LibName())
	}

	lib, err := native.Open(libPath)
	if err != nil {
		return err
	}
	base := lib.Outstanding()
	nt, err := lib.Load(source)
	if err != nil {
		return err
	}

	tree, err := boundary.Load(source, boundary.WithLedger(boundary.NewLedger()))
	if err != nil {
		nt.Close()
		return err
	}
	defer boundary.Unload(tree, nil)

	checked, mismatches, err := compareTrees(nt, tree)
	nt.Close()
	if err != nil {
		return err
	}
	leaked := lib.Outstanding() - base

	out := cmd.OutOrStdout()
	for _, m := range mismatches {
		fmt.Fprintf(out, "%s %s\n", colorError("mismatch"), m)
	}
	fmt.Fprintf(out, "%s  %s checked │ %d mismatches │ %d leaked\n",
		colorPath(lib.Path()), plural(checked, "type"), len(mismatches), leaked)
	if len(mismatches) > 0 || leaked != 0 {
		return fmt.Errorf("abi check failed")
	}
	return nil
}

// compareTrees walks the in-process tree and checks each node against the
// library's view of the same index.
func compareTrees(nt *native.Tree, tree *boundary.TreeHandle) (int, []string, error) {
	nodes := nt.Nodes()
	var mismatches []string
	checked := 0
	err := tree.ForEachNode(func(n *boundary.NodeHandle) error {
		defer n.Free()
		idx, err := n.Index()
		if err != nil {
			return err
		}
		path, err := n.Path()
		if err != nil {
			return err
		}
		checked++
		if int(idx) >= len(nodes) {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing from library", path))
			return nil
		}
		got := nodes[idx]
		parent, err := n.ParentIndex()
		if err != nil {
			return err
		}
		if got.Path != path || got.ParentIndex != parent {
			mismatches = append(mismatches, fmt.Sprintf("%s: library has %s (parent %d, want %d)", path, got.Path, got.ParentIndex, parent))
		}

		for _, enc := range []struct {
			what   string
			local  func() (*boundary.Buffer, error)
			remote func(uint32) ([]byte, bool)
		}{
			{"vars", n.EncodeVariables, nt.EncodeVariables},
			{"procs", n.EncodeProcedures, nt.EncodeProcedures},
		} {
			buf, err := enc.local()
			if err != nil {
				return err
			}
			want, err := buf.Bytes()
			if err != nil {
				buf.Free()
				return err
			}
			have, ok := enc.remote(idx)
			if !ok || !bytes.Equal(have, want) {
				mismatches = append(mismatches, fmt.Sprintf("%s: %s encoding differs (%d bytes, want %d)", path, enc.what, len(have), len(want)))
			}
			buf.Free()
		}
		return nil
	})
	if len(nodes) > checked {
		mismatches = append(mismatches, fmt.Sprintf("library has %d extra nodes", len(nodes)-checked))
	}
	return checked, mismatches, err
}
