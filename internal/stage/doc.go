// Package stage defines the state record carried through a pipeline run and
// the contract every stage implements.
//
// A run starts from a State holding the caller's inputs. Each Stage returns an
// Update naming only the fields it produced; State.Merge applies it with
// field-level overwrite. Stages guard their inputs with State.Require so a
// run that already failed, or lacks an input, never reaches an external call.
package stage
