// Package gemini provides a Google Gemini client for transcript fusion and
// meeting analysis.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.GenerateText: send system/user prompts, receive plain text.
// Client.GenerateJSON: request schema-constrained JSON and decode it.
// Client.UploadFile: push a video or PDF through the Files API and wait for ACTIVE.
// Client.HealthCheck: verify API key and model availability.
//
// # Failure Classification
//
// Every call performs a single attempt. HTTP 408/429/5xx, network errors and
// empty candidates are ExternalCallTransient; other 4xx responses are
// ExternalCallRejected; safety blocks are ExternalCallBlocked; payloads that
// fail to decode are ResponseSchemaInvalid. Callers wrap calls in retry.Do.
package gemini
