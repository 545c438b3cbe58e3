// Command gmf lists available pipeline components and processes wav files
// through pipelines assembled from them.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dudk/gmf"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd returns command tree which prints to out.
func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "gmf",
		Short: "Streaming media pipelines",
		Long: `gmf assembles pipelines of registered elements and runs them
to completion.

Elements are chained in the order they are listed, the head reads from the
in endpoint and the tail writes to the out endpoint.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)
	root.AddCommand(newListCmd(), newProcessCmd())
	return root
}

// defaultPool returns pool of stock components.
func defaultPool() (*gmf.Pool, error) {
	return gmf.NewDefaultPool()
}
