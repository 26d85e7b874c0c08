package config

const (
	defaultLibraryDir         = "~/.local/share/slidecast/library"
	defaultLogDir             = "~/.local/share/slidecast/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultWorkerCount        = 5
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 5
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultPerUserJobLimit    = 3
	defaultDeckMode           = "review"
	defaultMaxSlides          = 50
	defaultMaxUploadMiB       = 100
	defaultLLMBaseURL         = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel           = "gpt-4o-mini"
	defaultLLMTimeoutSeconds  = 120
	defaultTTSBaseURL         = "https://api.elevenlabs.io"
	defaultTTSModel           = "eleven_multilingual_v2"
	defaultTTSVoice           = "21m00Tcm4TlvDq8ikWAM"
	defaultTTSTimeoutSeconds  = 180
	defaultVoiceStability     = 0.5
	defaultVoiceSimilarity    = 0.75
	defaultVoiceStyle         = 0.0
	defaultRasterDPI          = 150
	defaultOCRLanguage        = "eng"
	defaultMinTextChars       = 40
	defaultNtfyTimeout        = 10

	defaultScriptSystemPrompt = "You are a presentation narrator. Write a spoken " +
		"narration script for the slide described by the user. Use a natural, " +
		"engaging lecture tone, stay factual to the slide content, and return " +
		"only the narration text with no headings or stage directions."
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Workflow: Workflow{
			WorkerCount:        defaultWorkerCount,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			PerUserJobLimit:    defaultPerUserJobLimit,
			DefaultMode:        defaultDeckMode,
		},
		Limits: Limits{
			MaxSlides:    defaultMaxSlides,
			MaxUploadMiB: defaultMaxUploadMiB,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			AllowedModels:  []string{defaultLLMModel},
			SystemPrompt:   defaultScriptSystemPrompt,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTS: TTS{
			BaseURL:       defaultTTSBaseURL,
			Model:         defaultTTSModel,
			AllowedModels: []string{defaultTTSModel},
			DefaultVoice:  defaultTTSVoice,
			Voice: VoiceSettings{
				Stability:       defaultVoiceStability,
				SimilarityBoost: defaultVoiceSimilarity,
				Style:           defaultVoiceStyle,
				SpeakerBoost:    true,
			},
			TimeoutSeconds: defaultTTSTimeoutSeconds,
		},
		Tools: Tools{
			Soffice:     "soffice",
			Pdftoppm:    "pdftoppm",
			Pdftotext:   "pdftotext",
			Tesseract:   "tesseract",
			FFmpeg:      "ffmpeg",
			FFprobe:     "ffprobe",
			OCRLanguage: defaultOCRLanguage,
			RasterDPI:   defaultRasterDPI,
		},
		Ingest: Ingest{
			MinTextChars: defaultMinTextChars,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
