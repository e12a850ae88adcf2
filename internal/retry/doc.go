// Package retry wraps a single external call with bounded attempts and
// doubling backoff.
//
// Failures carrying a non-retryable services.Kind return immediately; every
// other error is retried until the attempt budget is spent, at which point the
// caller receives a KindExternalCallExhausted failure. Backoff pauses and
// attempts honour context cancellation.
package retry
