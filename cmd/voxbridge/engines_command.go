package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"voxbridge/internal/app"
	"voxbridge/internal/engine"
	"voxbridge/internal/services"
)

func newEnginesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List registered engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(core *app.App) error {
				cfg := core.Config()
				rows := make([][]string, 0)
				for _, d := range core.Engines().Descriptors() {
					roles := make([]string, 0, 2)
					if d.Capabilities.Synthesize {
						roles = append(roles, "speak")
					}
					if d.Capabilities.Recognize {
						roles = append(roles, "transcribe")
					}
					defaults := make([]string, 0, 2)
					if d.ID == cfg.Engines.DefaultSynthesizer {
						defaults = append(defaults, "speak")
					}
					if d.ID == cfg.Engines.DefaultRecognizer {
						defaults = append(defaults, "transcribe")
					}
					model := d.ModelID
					if d.VocoderID != "" {
						model += " + " + d.VocoderID
					}
					rows = append(rows, []string{
						d.ID,
						d.Name,
						string(d.Kind),
						strings.Join(roles, ", "),
						strings.Join(defaults, ", "),
						yesNo(d.Loaded),
						model,
					})
				}
				newConsole(cmd.OutOrStdout()).table(
					[]string{"ID", "Name", "Kind", "Roles", "Default for", "Loaded", "Model"}, rows)
				return nil
			})
		},
	}
}

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	var engineID string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices an engine offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(core *app.App) error {
				id := strings.TrimSpace(engineID)
				if id == "" {
					id = core.Config().Engines.DefaultSynthesizer
				}
				e, err := core.Engines().Lookup(id)
				if err != nil {
					return err
				}
				lister, ok := e.(engine.VoiceLister)
				if !ok {
					return services.Wrap(services.ErrValidation, "cli", "voices", fmt.Sprintf("engine %q has no voice catalog", id), nil)
				}
				voices, err := lister.Voices(cmd.Context())
				if err != nil {
					return err
				}
				selected := lister.SelectedVoice()
				rows := make([][]string, 0, len(voices))
				for _, v := range voices {
					mark := ""
					if v.ID == selected {
						mark = "*"
					}
					rows = append(rows, []string{mark, v.ID, v.Name, v.Language, v.Gender})
				}
				newConsole(cmd.OutOrStdout()).table([]string{"", "ID", "Name", "Language", "Gender"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&engineID, "engine", "e", "", "Engine to list (default synthesizer when empty)")
	return cmd
}
