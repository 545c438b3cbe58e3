package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dudk/gmf/element"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered elements and endpoints",
		Long:  "Display elements and endpoints of the default pool with their capabilities.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := defaultPool()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			print := func(title string, names []string) error {
				fmt.Fprintf(out, "%s:\n", title)
				for _, name := range names {
					caps, err := pool.Caps(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  %-14s %s\n", name, capsString(caps))
				}
				return nil
			}
			if err := print("Elements", pool.Elements()); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return print("Endpoints", pool.Endpoints())
		},
	}
}

func capsString(caps []element.Cap) string {
	s := make([]string, 0, len(caps))
	for _, c := range caps {
		s = append(s, string(c))
	}
	return strings.Join(s, ", ")
}
