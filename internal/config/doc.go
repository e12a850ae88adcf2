// Package config reads the minutes TOML configuration.
//
// Load starts from the built-in defaults, overlays the file (when present),
// expands "~" in paths and falls back to GEMINI_API_KEY or GOOGLE_API_KEY
// for the model credential. Validate rejects unusable values such as an
// unknown log format or a notification topic that is not an http(s) URL.
// The server and every CLI command take their directories, retry policy and
// model settings from the resulting Config.
package config
