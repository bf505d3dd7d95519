package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maauso/faceswap/internal/processor"
)

var processorsCmd = &cobra.Command{
	Use:   "processors",
	Short: "List available frame processors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Listing never builds a processor, so no engine client is needed.
		return printProcessors(cmd, processor.DefaultRegistry(nil).List())
	},
}

func init() {
	rootCmd.AddCommand(processorsCmd)
}

func printProcessors(cmd *cobra.Command, infos []processor.Info) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\n", info.ID, info.Description)
	}
	return w.Flush()
}
