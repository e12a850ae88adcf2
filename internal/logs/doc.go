// Package logs reads the minutes log file for the CLI: the last N lines,
// optionally filtered to one run, and a polling follow mode.
package logs
