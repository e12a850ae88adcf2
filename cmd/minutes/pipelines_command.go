package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"minutes/internal/api"
	"minutes/internal/bootstrap"
)

func newPipelinesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List the configured pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(app *bootstrap.App) error {
				pipelines := app.Runner.Pipelines()
				if asJSON {
					return writeJSON(cmd, api.PipelinesResponse{Pipelines: api.FromPipelines(pipelines)})
				}
				rows := make([][]string, 0, len(pipelines))
				for _, p := range pipelines {
					rows = append(rows, []string{p.Name, yesNo(p.Default), strings.Join(p.Stages, " -> "), valueOrDash(p.Description)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Default", "Stages", "Description"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print pipelines as JSON")
	return cmd
}
