// Package whisper runs the openai-whisper CLI against a meeting recording and
// loads the JSON artifact it writes.
//
// The CLI is invoked as
//
//	whisper <video> --model <m> --language <l> --task transcribe \
//	    --output_dir <dir> --output_format json
//
// and is expected to produce <dir>/<stem>.json. Failures are classified as
// services.Failure values: a missing video or binary is ResourceNotFound, a
// non-zero exit is ExternalCallRejected, and an unreadable artifact is
// ResourceNotFound or ResponseSchemaInvalid.
package whisper
