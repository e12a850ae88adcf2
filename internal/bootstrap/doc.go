// Package bootstrap assembles the runtime from configuration: model and
// transcription clients, the retry policy, the stage registry and pipeline
// runner, the task store, and the workspace manager.
//
// Both the CLI and the HTTP server submit work through App.Execute so a run
// is recorded, executed, and cleaned up the same way regardless of entry
// point.
package bootstrap
