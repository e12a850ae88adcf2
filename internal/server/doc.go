// Package server exposes the analysis pipelines over HTTP.
//
// A Server holds an exclusive flock on the data directory so only one
// instance serves a database at a time. On start it fails any task left
// pending or running by a previous process, then serves:
//
//	POST /api/analyze      multipart upload of ppt_file, video_file, transcript_file
//	POST /api/transcript   JSON {"transcript": "..."} run through transcript_insights
//	GET  /api/tasks        task listing, filterable by ?status=
//	GET  /api/tasks/{id}   one task with its report
//	GET  /api/health       database and stage readiness
//	GET  /api/pipelines    available pipelines
//
// Submissions run synchronously unless ?async=true, in which case the task is
// accepted with 202 and executed on a bounded set of background workers. A
// janitor periodically removes stale workspaces left by failed runs.
package server
