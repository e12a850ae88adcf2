package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"minutes/internal/api"
	"minutes/internal/bootstrap"
	"minutes/internal/tasks"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect recorded analysis tasks",
	}
	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksDeleteCommand(ctx))
	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withApp(false, func(app *bootstrap.App) error {
				items, err := app.Store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.TaskListResponse{Tasks: api.FromTasks(items)})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No tasks recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Pipeline", "Status", "Created", "Duration", "Error"},
					taskRows(items),
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (pending, running, completed, failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	return cmd
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task and its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(false, func(app *bootstrap.App) error {
				task, err := getTask(cmd.Context(), app, id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.TaskResponse{Task: api.FromTask(task, true)})
				}
				renderTaskDetail(cmd, task)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the task as JSON")
	return cmd
}

func newTasksDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a finished task and its retained workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(false, func(app *bootstrap.App) error {
				task, err := getTask(cmd.Context(), app, id)
				if err != nil {
					return err
				}
				if !task.Status.IsTerminal() {
					return fmt.Errorf("task %d is %s; wait for it to finish", id, task.Status)
				}
				if _, err := app.Store.Delete(cmd.Context(), id); err != nil {
					return err
				}
				if task.WorkspaceDir != "" {
					if err := app.Workspaces.Remove(task.WorkspaceDir); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
				return nil
			})
		},
	}
}

func getTask(ctx context.Context, app *bootstrap.App, id int64) (*tasks.Task, error) {
	task, err := app.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", id)
	}
	return task, nil
}

func parseTaskID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", value)
	}
	return id, nil
}

func parseStatuses(values []string) ([]tasks.Status, error) {
	statuses := make([]tasks.Status, 0, len(values))
	for _, value := range values {
		status, err := tasks.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func taskRows(items []*tasks.Task) [][]string {
	rows := make([][]string, 0, len(items))
	for _, task := range items {
		errText := "-"
		if failure := task.Failure(); failure != nil {
			errText = string(failure.Kind)
			if failure.Stage != "" {
				errText += " @ " + failure.Stage
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			task.Pipeline,
			string(task.Status),
			formatTimestamp(task.CreatedAt),
			formatDuration(task.Duration()),
			errText,
		})
	}
	return rows
}

func renderTaskDetail(cmd *cobra.Command, task *tasks.Task) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	rows := [][]string{
		{"ID", strconv.FormatInt(task.ID, 10)},
		{"Run ID", task.RunID},
		{"Pipeline", task.Pipeline},
		{"Status", statusLabel(task.Status, colorize)},
		{"Transcript", valueOrDash(task.TranscriptPath)},
		{"Deck", valueOrDash(task.DeckPath)},
		{"Video", valueOrDash(task.VideoPath)},
		{"Workspace", valueOrDash(task.WorkspaceDir)},
		{"Created", formatTimestamp(task.CreatedAt)},
		{"Duration", formatDuration(task.Duration())},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

	if failure := task.Failure(); failure != nil {
		renderFailure(out, *failure, colorize)
		return
	}
	report, err := task.Report()
	if err != nil {
		fmt.Fprintf(out, "Report unreadable: %v\n", err)
		return
	}
	if report != nil {
		renderReport(out, report, colorize)
	}
}
