package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"minutes/internal/api"
	"minutes/internal/bootstrap"
	"minutes/internal/services"
)

const insightsPipeline = "transcript_insights"

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var transcriptPath string
	var deckPath string
	var videoPath string
	var pipeline string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a meeting from transcript, slide deck and video files",
		Long: "Runs a pipeline locally and prints the report. The default pipeline\n" +
			"transcribes --video; pass --transcript to supply an existing transcript.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(true, func(app *bootstrap.App) error {
				job, err := app.NewJob(pipeline)
				if err != nil {
					return err
				}
				job, err = fillJobInputs(job, transcriptPath, deckPath, videoPath)
				if err != nil {
					app.Discard(job)
					return err
				}
				return runJob(cmd, app, job, asJSON)
			})
		},
	}

	cmd.Flags().StringVarP(&transcriptPath, "transcript", "t", "", "Transcript file (.txt or .json)")
	cmd.Flags().StringVarP(&deckPath, "deck", "d", "", "Slide deck (.pptx or .pdf)")
	cmd.Flags().StringVarP(&videoPath, "video", "v", "", "Meeting recording")
	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline name (defaults to pipeline.default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newInsightsCommand(ctx *commandContext) *cobra.Command {
	var filePath string
	var pipeline string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "insights [transcript text | -]",
		Short: "Summarize a raw transcript",
		Long: "Extracts key points, action items and a summary from transcript text.\n" +
			"Pass the text as arguments, \"-\" to read stdin, or --file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, source, err := readTranscriptInput(cmd.InOrStdin(), args, filePath)
			if err != nil {
				return err
			}
			return ctx.withApp(true, func(app *bootstrap.App) error {
				job, err := app.NewJob(pipeline)
				if err != nil {
					return err
				}
				job.Transcript = transcript
				job.TranscriptPath = source
				return runJob(cmd, app, job, asJSON)
			})
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Transcript file (.txt or .json)")
	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", insightsPipeline, "Pipeline name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func fillJobInputs(job bootstrap.Job, transcriptPath, deckPath, videoPath string) (bootstrap.Job, error) {
	var err error
	if job.TranscriptPath, err = bootstrap.AbsPath(transcriptPath); err != nil {
		return job, fmt.Errorf("resolve transcript path: %w", err)
	}
	if job.DeckPath, err = bootstrap.AbsPath(deckPath); err != nil {
		return job, fmt.Errorf("resolve deck path: %w", err)
	}
	if job.VideoPath, err = bootstrap.AbsPath(videoPath); err != nil {
		return job, fmt.Errorf("resolve video path: %w", err)
	}
	if job.TranscriptPath != "" {
		if job.Transcript, err = bootstrap.LoadTranscript(job.TranscriptPath); err != nil {
			return job, err
		}
	}
	return job, nil
}

// readTranscriptInput returns the transcript text and, for files, its path.
func readTranscriptInput(stdin io.Reader, args []string, filePath string) (string, string, error) {
	filePath = strings.TrimSpace(filePath)
	switch {
	case filePath != "" && len(args) > 0:
		return "", "", errors.New("pass transcript text or --file, not both")
	case filePath != "":
		path, err := bootstrap.AbsPath(filePath)
		if err != nil {
			return "", "", fmt.Errorf("resolve transcript path: %w", err)
		}
		text, err := bootstrap.LoadTranscript(path)
		return text, path, err
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return requireText(string(data))
	default:
		return requireText(strings.Join(args, " "))
	}
}

func requireText(text string) (string, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", services.Fail(services.KindResourceInvalid, "", "transcript is empty", nil)
	}
	return text, "", nil
}

// runJob executes job and prints its outcome. A failed run prints the
// failure and returns an error so the process exits non-zero.
func runJob(cmd *cobra.Command, app *bootstrap.App, job bootstrap.Job, asJSON bool) error {
	result, err := app.Execute(cmd.Context(), job)
	if err != nil && result.Task == nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		if err := writeJSON(cmd, api.FromResult(result.Task, result.State)); err != nil {
			return err
		}
	} else {
		renderRunResult(out, result, shouldColorize(out))
	}
	if failure := result.Failure(); failure != nil {
		return fmt.Errorf("analysis failed: %w", failure)
	}
	return nil
}
