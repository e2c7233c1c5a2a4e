package main

import (
	"fmt"

	"github.com/aretw0/rehearsal"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rehearsal",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rehearsal version %s\n", rehearsal.Version)
		},
	}
}
