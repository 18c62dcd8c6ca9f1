package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"voxbridge/internal/app"
	"voxbridge/internal/config"
	"voxbridge/internal/fileutil"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var engineID string
	var outputPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe one audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(core *app.App) error {
				out, err := core.Transcribe(cmd.Context(), args[0], engineID, progressPrinter(cmd.ErrOrStderr(), quiet))
				if err != nil {
					return fmt.Errorf("%s: %s", out.State, out.Reason())
				}
				if target := strings.TrimSpace(outputPath); target != "" {
					expanded, err := config.ExpandPath(target)
					if err != nil {
						return err
					}
					if err := fileutil.WriteFileAtomic(expanded, []byte(out.Text), 0o644); err != nil {
						return fmt.Errorf("write transcript: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote transcript to %s\n", expanded)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), out.Text)
				}
				if out.FromCache && !quiet {
					fmt.Fprintln(cmd.ErrOrStderr(), "  (served from cache)")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&engineID, "engine", "e", "", "Recognition engine (default from config)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the transcript to this file instead of stdout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}
