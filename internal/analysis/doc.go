// Package analysis implements the meeting analysis stages and the Runner that
// executes named pipelines over them.
//
// Stages:
//   - transcribe: local Whisper transcription of the video into LocalTranscript
//   - fuse: merge the supplied and local transcripts into FusedTranscript
//   - extract_slides: pptx text digest into SlideText
//   - combine_context: deterministic join of transcript and slide text
//   - key_points / action_items: structured extraction from CombinedContext
//   - analyze: multimodal structured report from video, deck and transcript
//   - summarize: text-only report from the extracted insights
//
// Every stage checks its prerequisites before touching an external service
// and wraps each model call in retry.Do. Collaborators are injected through
// Deps so tests can substitute fakes.
package analysis
