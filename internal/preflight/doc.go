// Package preflight provides readiness checks for the local tools, API
// credentials and filesystem paths that minutes depends on.
//
// These checks run in two contexts:
//   - "minutes check" runs RunAll and prints one row per check.
//   - "minutes serve" runs RunAll at startup and logs failed checks as
//     warnings without refusing to start.
//
// The live Gemini ping is only attempted when Options.Ping is set.
package preflight
