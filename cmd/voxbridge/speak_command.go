package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"voxbridge/internal/app"
	"voxbridge/internal/config"
	"voxbridge/internal/engine"
	"voxbridge/internal/session"
)

func newSpeakCommand(ctx *commandContext) *cobra.Command {
	var engineID string
	var voice string
	var language string
	var outputPath string
	var textFlag string
	var textFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "speak [TEXT...]",
		Short: "Synthesize speech from text",
		Long: "Synthesize speech from text given with --text or as arguments, read\n" +
			"from --file, or read from stdin when --file is \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := speechText(textFlag, args, textFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			params := engine.VoiceParams{
				Voice:    strings.TrimSpace(voice),
				Language: strings.TrimSpace(language),
			}
			if target := strings.TrimSpace(outputPath); target != "" {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return err
				}
				params.OutputPath = expanded
			}
			return ctx.withApp(func(core *app.App) error {
				audio, err := core.Speak(cmd.Context(), session.SpeechRequest{
					EngineID: engineID,
					Text:     text,
					Params:   params,
				}, progressPrinter(cmd.ErrOrStderr(), quiet))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s audio to %s\n", audio.Format, audio.Path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&engineID, "engine", "e", "", "Synthesis engine (default from config)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice id for engines with a voice catalog")
	cmd.Flags().StringVar(&language, "lang", "", "BCP-47 language tag")
	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "Audio output path")
	cmd.Flags().StringVarP(&textFlag, "text", "t", "", "Text to speak")
	cmd.Flags().StringVarP(&textFile, "file", "f", "", "Read text from a file (\"-\" for stdin)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

func speechText(textFlag string, args []string, textFile string, stdin io.Reader) (string, error) {
	if textFlag != "" {
		args = append([]string{textFlag}, args...)
	}
	source := strings.TrimSpace(textFile)
	switch {
	case source == "" && len(args) == 0:
		return "", errors.New("text is required: pass --text, arguments, or --file")
	case source == "":
		return strings.Join(args, " "), nil
	case len(args) > 0:
		return "", errors.New("pass text either inline or with --file, not both")
	case source == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		path, err := config.ExpandPath(source)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(data), nil
	}
}
