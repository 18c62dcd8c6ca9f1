package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxbridge/internal/app"
	"voxbridge/internal/engine"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the local model store",
	}
	modelsCmd.AddCommand(newModelsListCommand(ctx))
	modelsCmd.AddCommand(newModelsPullCommand(ctx))
	return modelsCmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	var recommended bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed models, or the recommended catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(core *app.App) error {
				out := cmd.OutOrStdout()
				if recommended {
					printRecommendedModels(newConsole(out), core.RecommendedModels())
					return nil
				}
				models, err := core.InstalledModels()
				if err != nil {
					return err
				}
				if len(models) == 0 {
					fmt.Fprintf(out, "No models installed in %s\n", core.Config().Paths.ModelsDir)
					fmt.Fprintln(out, "See `voxbridge models list --recommended` for models to pull.")
					return nil
				}
				rows := make([][]string, 0, len(models))
				for _, m := range models {
					rows = append(rows, []string{m.ID, m.Type, humanBytes(m.SizeBytes), yesNo(m.Complete)})
				}
				newConsole(out).table([]string{"Model", "Type", "Size", "Complete"}, rows, 2)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&recommended, "recommended", false, "Show the recommended model catalog")
	return cmd
}

func printRecommendedModels(con *console, recs []engine.RecommendedModel) {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		vocoder := r.Vocoder
		if vocoder == "" {
			vocoder = "-"
		}
		rows = append(rows, []string{r.ID, r.Name, vocoder, yesNo(r.Installed), yesNo(r.Configured)})
	}
	con.table([]string{"Model", "Name", "Vocoder", "Installed", "Configured"}, rows)
	con.println("Pull one with `voxbridge models pull MODEL_ID`.")
}

func newModelsPullCommand(ctx *commandContext) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "pull MODEL_ID",
		Short: "Download a model (org/name) into the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(core *app.App) error {
				dir, err := core.PullModel(cmd.Context(), args[0], progressPrinter(cmd.ErrOrStderr(), quiet))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed in %s\n", args[0], dir)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}
