package config

const (
	defaultConfigPath             = "~/.config/minutes/config.toml"
	defaultDataDir                = "~/.local/share/minutes"
	defaultWorkspaceDir           = "~/.local/share/minutes/workspaces"
	defaultLogDir                 = "~/.local/share/minutes/logs"
	defaultAPIBind                = "127.0.0.1:7590"
	defaultGeminiBaseURL          = "https://generativelanguage.googleapis.com"
	defaultGeminiTextModel        = "gemini-2.0-flash"
	defaultGeminiVisionModel      = "gemini-2.0-flash"
	defaultGeminiTimeoutSeconds   = 120
	defaultGeminiTemperature      = 0.2
	defaultRetryMaxAttempts       = 5
	defaultRetryInitialDelayMs    = 1000
	defaultRetryMaxDelayMs        = 0
	defaultRetryAttemptTimeoutSec = 180
	defaultWhisperCommand         = "whisper"
	defaultWhisperModel           = "base"
	defaultWhisperLanguage        = "en"
	defaultWhisperTimeoutSeconds  = 3600
	defaultPipeline               = "meeting_analysis"
	defaultNtfyTimeoutSeconds     = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			TextModel:      defaultGeminiTextModel,
			VisionModel:    defaultGeminiVisionModel,
			TimeoutSeconds: defaultGeminiTimeoutSeconds,
			Temperature:    defaultGeminiTemperature,
		},
		Retry: Retry{
			MaxAttempts:           defaultRetryMaxAttempts,
			InitialDelayMillis:    defaultRetryInitialDelayMs,
			MaxDelayMillis:        defaultRetryMaxDelayMs,
			AttemptTimeoutSeconds: defaultRetryAttemptTimeoutSec,
		},
		Whisper: Whisper{
			Command:        defaultWhisperCommand,
			Model:          defaultWhisperModel,
			Language:       defaultWhisperLanguage,
			TimeoutSeconds: defaultWhisperTimeoutSeconds,
		},
		Pipeline: Pipeline{
			Default: defaultPipeline,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
