package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/adapters/native"
	"github.com/corey/dmtree/internal/app"
)

var configInit bool

var configCmd = &cobra.Command{
	Use:   "config [file.dme|dir]",
	Short: "Show configuration",
	Long:  "Shows the project root, resolved paths and effective dmtree.yaml. --init writes the defaults.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Write a default dmtree.yaml if none exists")
}

func runConfig(cmd *cobra.Command, args []string) error {
	root, err := projectFor(args)
	if err != nil {
		return err
	}
	paths := app.NewPaths(root)
	out := cmd.OutOrStdout()

	if configInit {
		return writeDefaultConfig(paths, out)
	}

	cfg, err := app.LoadConfig(root)
	if err != nil {
		return err
	}
	source := colorDim("(defaults)")
	if _, err := os.Stat(paths.Config); err == nil {
		source = paths.Config
	}
	lib := native.Find(native.DefaultLibraryPaths(root))
	if lib == "" {
		lib = colorDim("(not found)")
	}

	fmt.Fprintf(out, "%s\n", colorBold("dmtree config"))
	fmt.Fprintf(out, "  Project:  %s\n", root)
	fmt.Fprintf(out, "  Config:   %s\n", source)
	fmt.Fprintf(out, "  Cache:    %s\n", cfg.CachePath(paths))
	fmt.Fprintf(out, "  Logs:     %s\n", paths.LogDir)
	fmt.Fprintf(out, "  Library:  %s\n\n", lib)

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func writeDefaultConfig(paths *app.Paths, out io.Writer) error {
	if _, err := os.Stat(paths.Config); err == nil {
		return fmt.Errorf("%s already exists", paths.Config)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	data, err := app.DefaultConfig().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(paths.Config, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", paths.Config)
	return nil
}
