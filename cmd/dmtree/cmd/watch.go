package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file.dme>",
	Short: "Reload the tree whenever a source file changes",
	Long:  "Keeps the tree loaded and prints a summary after each reload. Stops on Ctrl-C.",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := openSession(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, formatSummary(s.Summary()))

	err = s.Watch(func(changed string, sum app.Summary, err error) {
		rel, relErr := filepath.Rel(s.Paths.Project, changed)
		if relErr != nil {
			rel = changed
		}
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", colorError("reload failed"), rel, err)
			return
		}
		fmt.Fprintf(out, "%s %s\n", colorDim(rel), formatSummary(sum))
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", colorDim("watching "+s.Paths.Project))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
