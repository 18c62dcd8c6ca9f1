package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voxbridge/internal/app"
	"voxbridge/internal/config"
	"voxbridge/internal/queue"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var engineID string
	var listPath string
	var dirPath string

	cmd := &cobra.Command{
		Use:   "batch [FILE...]",
		Short: "Transcribe a queue of audio files one after another",
		Long: "Transcribe a queue of audio files one after another.\n\n" +
			"Files may be given as arguments, through --list (one path per line), or\n" +
			"with --dir (supported audio files in the directory). Interrupting the run\n" +
			"lets the current file settle and reports the files left queued.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectBatchPaths(args, listPath, dirPath)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no input files: pass files, --list, or --dir")
			}
			return ctx.withApp(func(core *app.App) error {
				out := newConsole(cmd.OutOrStdout())
				printer := &batchPrinter{out: out}
				res, err := core.Batch(cmd.Context(), app.BatchRequest{
					Paths:     paths,
					EngineID:  engineID,
					Observers: []queue.Observer{printer},
				})
				if err != nil {
					return err
				}
				if res.EnqueueErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Skipped: %v\n", res.EnqueueErr)
				}
				printBatchSummary(out, res)
				switch {
				case res.Summary.WasCancelled:
					return context.Canceled
				case res.Summary.Failed > 0:
					return fmt.Errorf("%d of %d files failed", res.Summary.Failed, res.Summary.Total())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&engineID, "engine", "e", "", "Recognition engine (default from config)")
	cmd.Flags().StringVar(&listPath, "list", "", "File listing audio paths, one per line")
	cmd.Flags().StringVar(&dirPath, "dir", "", "Directory of audio files to queue")
	return cmd
}

func collectBatchPaths(args []string, listPath, dirPath string) ([]string, error) {
	paths := append([]string(nil), args...)
	if list := strings.TrimSpace(listPath); list != "" {
		expanded, err := config.ExpandPath(list)
		if err != nil {
			return nil, err
		}
		entries, err := queue.ReadList(expanded)
		if err != nil {
			return nil, err
		}
		paths = append(paths, entries...)
	}
	if dir := strings.TrimSpace(dirPath); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return nil, err
		}
		entries, err := queue.ExpandDirectory(expanded)
		if err != nil {
			return nil, err
		}
		paths = append(paths, entries...)
	}
	return paths, nil
}

// batchPrinter renders queue events as they arrive on the loop goroutine.
type batchPrinter struct {
	queue.NopObserver
	out   *console
	total int
	index int
}

func (p *batchPrinter) RunStarted(_ string, jobs int) {
	p.total = jobs
	p.index = 0
	p.out.printf("Queue started: %d file(s)\n", jobs)
}

func (p *batchPrinter) JobStarted(job queue.Job) {
	p.index++
	p.out.printf("[%d/%d] %s\n", p.index, p.total, filepath.Base(job.SourcePath))
}

func (p *batchPrinter) JobFinished(job queue.Job) {
	name := filepath.Base(job.SourcePath)
	switch job.Status {
	case queue.StatusCompleted:
		note := ""
		if job.FromCache {
			note = "cached"
		}
		p.out.status(name, statusOK, note)
	case queue.StatusCancelled:
		p.out.status(name, statusWarn, "cancelled")
	default:
		p.out.status(name, statusError, job.FailureReason)
	}
}

func printBatchSummary(out *console, res app.BatchResult) {
	s := res.Summary
	out.printf("\nCompleted: %d  Failed: %d  Cancelled: %d  Elapsed: %s\n",
		s.Completed, s.Failed, s.Cancelled, s.Elapsed.Round(time.Millisecond))

	if len(res.Transcripts) > 0 {
		rows := make([][]string, 0, len(res.Transcripts))
		for _, path := range res.Transcripts {
			rows = append(rows, []string{path})
		}
		sortRows(rows)
		out.table([]string{"Transcript"}, rows)
	}
	if len(s.Failures) > 0 {
		rows := make([][]string, 0, len(s.Failures))
		for _, f := range s.Failures {
			rows = append(rows, []string{filepath.Base(f.Job.SourcePath), f.Reason})
		}
		out.table([]string{"Failed file", "Reason"}, rows)
	}
	if len(res.Remaining) > 0 {
		out.printf("Left queued (%d):\n", len(res.Remaining))
		for _, job := range res.Remaining {
			out.printf("  - %s\n", job.SourcePath)
		}
	}
}
