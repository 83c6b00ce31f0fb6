package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coriolis-systems/workercore/internal/concurrency"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Build a worker over the fake transport and print its capability table",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := buildWorker()
		if err != nil {
			return fmt.Errorf("build worker: %w", err)
		}
		defer w.Destroy()

		var out strings.Builder
		fmt.Fprintf(&out, "host: %d cpus across %d numa node(s)\n",
			concurrency.NumCPUs(), concurrency.NUMANodes())

		aff := concurrency.NewDefaultAffinity()
		if err := aff.Pin(concurrency.PreferredCPUID(concurrency.CurrentNUMANodeID()), concurrency.CurrentNUMANodeID()); err == nil {
			cpuID, numaID, _ := aff.Get()
			fmt.Fprintf(&out, "pinned: cpu=%d numa=%d\n", cpuID, numaID)
			defer aff.Unpin()
		}
		w.PrintInfo(&out)
		fmt.Fprint(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
