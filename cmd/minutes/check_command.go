package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"minutes/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var ping bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, local tools and Gemini credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{Ping: ping})

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				rows = append(rows, []string{result.Name, checkLabel(result, colorize), result.Detail})
			}
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ping, "ping", false, "Contact the Gemini API to validate the key")
	return cmd
}

func checkLabel(result preflight.Result, colorize bool) string {
	label, color := "ok", text.FgGreen
	switch {
	case result.Passed:
	case result.Optional:
		label, color = "warn", text.FgYellow
	default:
		label, color = "fail", text.FgRed
	}
	if !colorize {
		return label
	}
	return color.Sprint(label)
}
