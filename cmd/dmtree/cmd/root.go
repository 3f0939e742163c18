package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/app"
	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/logger"
)

var (
	noCache bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "dmtree",
	Short:         "Inspect DreamMaker object trees",
	Long:          "Loads a .dme environment and shows its types, vars, procs and diagnostics.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", colorError("error:"), err)
	}
	return err
}

// ExitCode maps a command error to the process exit status: 2 for usage
// problems, 3 when the tree loaded but has errors, otherwise 1.
func ExitCode(err error) int {
	var de *diagnosticsError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &de):
		return 3
	case errors.Is(err, boundary.ErrInvalidPath):
		return 2
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Load without the snapshot cache")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug records to stderr")

	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(varsCmd)
	rootCmd.AddCommand(procsCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(diagCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(abiCheckCmd)
}

// initLogger configures logging for the project around source. --verbose
// overrides the config file.
func initLogger(source string) error {
	paths := app.NewPaths(app.ProjectRootFor(source))
	cfg, err := app.LoadConfig(paths.Project)
	if err != nil {
		return err
	}
	opts := cfg.LoggerOptions(paths)
	if verbose {
		opts.Enabled, opts.Stderr, opts.Level = true, true, logger.ParseLevel("debug")
	}
	return logger.Init(opts)
}

// openSession loads source for a one-shot command.
func openSession(source string) (*app.Session, error) {
	if err := initLogger(source); err != nil {
		return nil, err
	}
	return app.Open(source, app.SessionOptions{NoCache: noCache})
}

// withType runs fn on the node at typePath in the tree loaded from source.
func withType(source, typePath string, fn func(n *boundary.NodeHandle, ctx *boundary.ContextHandle) error) error {
	s, err := openSession(source)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.With(func(tree *boundary.TreeHandle, ctx *boundary.ContextHandle) error {
		n, err := tree.Find(typePath)
		if err != nil {
			return err
		}
		defer n.Free()
		return fn(n, ctx)
	})
}
