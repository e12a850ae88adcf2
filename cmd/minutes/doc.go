// Command minutes analyzes recorded meetings: it transcribes video with
// Whisper, asks Gemini for a structured report, and records every run as a
// task.
//
// Subcommands:
//   - serve: run the HTTP API
//   - analyze: run a pipeline locally against transcript, deck and video files
//   - insights: summarize a raw transcript
//   - tasks: list, show and delete recorded tasks
//   - pipelines: list the configured pipelines
//   - check: run preflight checks
//   - logs: show or follow the log file
//   - test-notify: send a test ntfy notification
//   - config: create or validate the configuration file
package main
