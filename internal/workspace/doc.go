// Package workspace manages the per-run scratch directories that hold
// uploaded inputs and Whisper output while a pipeline runs.
package workspace
