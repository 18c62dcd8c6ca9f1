package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voxbridge/internal/deps"
	"voxbridge/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, external tools, and the cloud API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := newConsole(cmd.OutOrStdout())

			out.section("Environment")
			if ctx.configPath != "" {
				out.status("Config", statusInfo, ctx.configPath)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				out.status(r.Name, kind, r.Detail)
			}

			out.println()
			out.section("External tools")
			statuses := preflight.CheckSystemDeps(cfg)
			for _, s := range statuses {
				kind := statusOK
				detail := s.Path
				if !s.Available {
					kind = statusError
					if s.Optional {
						kind = statusWarn
					}
					detail = s.Detail
				}
				if detail == "" {
					detail = s.Description
				}
				out.status(s.Name, kind, detail)
			}

			missing := deps.Missing(statuses)
			switch {
			case !preflight.Passed(results) && len(missing) > 0:
				return fmt.Errorf("checks failed; missing tools: %s", deps.Describe(missing))
			case !preflight.Passed(results):
				return errors.New("checks failed")
			case len(missing) > 0:
				return fmt.Errorf("missing tools: %s", deps.Describe(missing))
			}
			return nil
		},
	}
}
