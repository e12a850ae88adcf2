package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"minutes/internal/bootstrap"
	"minutes/internal/services"
	"minutes/internal/stage"
	"minutes/internal/tasks"
)

func renderRunResult(out io.Writer, result bootstrap.Result, colorize bool) {
	if result.Task != nil {
		fmt.Fprintf(out, "Task %d (%s) %s\n", result.Task.ID, result.Task.Pipeline, statusLabel(result.Task.Status, colorize))
	}
	if failure := result.Failure(); failure != nil {
		renderFailure(out, failure.Detail(), colorize)
		return
	}
	renderReport(out, result.State.Report, colorize)
}

func renderFailure(out io.Writer, detail services.Detail, colorize bool) {
	writeHeading(out, "Failure", colorize)
	rows := [][]string{
		{"Kind", string(detail.Kind)},
		{"Stage", valueOrDash(detail.Stage)},
		{"Message", valueOrDash(detail.Message)},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
}

func renderReport(out io.Writer, report *stage.Report, colorize bool) {
	if report == nil {
		fmt.Fprintln(out, "No report was produced.")
		return
	}

	writeHeading(out, "Summary", colorize)
	fmt.Fprintln(out, valueOrDash(report.Summary))

	if len(report.KeyPoints) > 0 {
		writeHeading(out, "Key points", colorize)
		for _, point := range report.KeyPoints {
			fmt.Fprintf(out, "  - %s\n", point)
		}
	}

	writeHeading(out, "Action items", colorize)
	if len(report.ActionItems) == 0 {
		fmt.Fprintln(out, "None")
	} else {
		rows := make([][]string, 0, len(report.ActionItems))
		for i, item := range report.ActionItems {
			rows = append(rows, []string{strconv.Itoa(i + 1), item})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Item"}, rows, []columnAlignment{alignRight, alignLeft}))
	}

	if len(report.ContextFields) > 0 {
		writeHeading(out, "Context", colorize)
		keys := make([]string, 0, len(report.ContextFields))
		for key := range report.ContextFields {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, []string{key, report.ContextFields[key]})
		}
		fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
	}

	writeHeading(out, "Final decision", colorize)
	fmt.Fprintln(out, valueOrDash(report.FinalDecision))
}

func writeHeading(out io.Writer, title string, colorize bool) {
	line := title
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = text.Colors{text.FgBlue, text.Bold}.Sprint(line)
		rule = text.FgBlue.Sprint(rule)
	}
	fmt.Fprintf(out, "\n%s\n%s\n", line, rule)
}

func statusLabel(status tasks.Status, colorize bool) string {
	label := string(status)
	if !colorize {
		return label
	}
	switch status {
	case tasks.StatusCompleted:
		return text.FgGreen.Sprint(label)
	case tasks.StatusFailed:
		return text.FgRed.Sprint(label)
	case tasks.StatusRunning:
		return text.FgYellow.Sprint(label)
	default:
		return label
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
