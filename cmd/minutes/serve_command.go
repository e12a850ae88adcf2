package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"minutes/internal/bootstrap"
	"minutes/internal/logging"
	"minutes/internal/preflight"
	"minutes/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var maxBackground int
	var transcriptPipeline string
	var ping bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireGeminiKey(); err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for _, result := range preflight.RunAll(runCtx, cfg, preflight.Options{Ping: ping}) {
				if result.Passed {
					continue
				}
				logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", result.Name),
					logging.String("detail", result.Detail),
					logging.Bool("optional", result.Optional),
					logging.String(logging.FieldErrorHint, "run 'minutes check' for details"),
				)
			}

			app, err := bootstrap.Build(cfg, logger, bootstrap.Options{DefinitionsPath: ctx.definitionsPath()})
			if err != nil {
				return err
			}
			defer app.Close()

			srv, err := server.New(app,
				server.WithBind(bind),
				server.WithMaxBackground(maxBackground),
				server.WithTranscriptPipeline(transcriptPipeline),
			)
			if err != nil {
				return err
			}
			if err := srv.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("minutes server stopped", logging.String(logging.FieldEventType, "server_stopped"))
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to paths.api_bind)")
	cmd.Flags().IntVar(&maxBackground, "max-background", 2, "Maximum concurrent asynchronous runs")
	cmd.Flags().StringVar(&transcriptPipeline, "transcript-pipeline", "", "Pipeline used by POST /api/transcript")
	cmd.Flags().BoolVar(&ping, "ping", false, "Contact the Gemini API during startup checks")
	return cmd
}
