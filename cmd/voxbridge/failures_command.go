package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxbridge/internal/failurelog"
)

func newFailuresCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var showPath bool

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show recent conversion failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := failurelog.New(cfg.Paths.FailureLog)
			out := cmd.OutOrStdout()
			if showPath {
				fmt.Fprintln(out, log.Path())
				return nil
			}
			entries, err := log.Read(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No failures recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				if e.File == "" {
					rows = append(rows, []string{"-", "-", e.Raw})
					continue
				}
				rows = append(rows, []string{formatStamp(e.At), e.File, e.Message})
			}
			newConsole(out).table([]string{"Time", "File", "Reason"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&showPath, "path", false, "Print the failure log location and exit")
	return cmd
}
