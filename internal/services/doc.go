// Package services defines shared utilities consumed by the pipeline stages
// and the external integrations they call.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, task IDs, stage and pipeline names,
//     and correlation identifiers for logging.
//   - The Failure type and its Kind taxonomy, which every stage uses to report
//     why it stopped (missing input, blocked or exhausted external call,
//     invalid response, missing artifact).
//
// Clients under services/ return Failures for every outcome they can
// classify, so the retry wrapper and the executor never see raw transport
// errors they have to interpret.
package services
