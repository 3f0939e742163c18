package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/app"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the snapshot cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [file.dme|dir]",
	Short: "Delete every cached snapshot for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	root, err := projectFor(args)
	if err != nil {
		return err
	}
	n, err := app.ClearCache(root)
	if err != nil {
		if isDBLockError(err) {
			return fmt.Errorf("cache is locked by another dmtree process (is `dmtree watch` running?)")
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", plural(n, "snapshot"))
	return nil
}

// projectFor resolves the project of an optional file or directory
// argument, defaulting to the working directory.
func projectFor(args []string) (string, error) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		// ProjectRootFor starts from a file's directory.
		return app.ProjectRootFor(filepath.Join(target, app.ConfigFile)), nil
	}
	return app.ProjectRootFor(target), nil
}
