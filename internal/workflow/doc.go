// Package workflow compiles pipelines into immutable stage graphs and runs
// them.
//
// A Builder registers stages, wires each one to its successors (directly or
// through a Router), and Compile rejects graphs with dangling edges, cycles,
// or unreachable stages. The Executor walks a compiled Graph in an explicit
// loop: run the current stage, merge its update into the state, ask the
// router for the next node, and stop at NodeEnd or NodeFailed. Built-in
// pipeline shapes live in pipelines.yaml.
package workflow
