package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeProviders()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		c.Paths.LibraryDir = defaultLibraryDir
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.WorkerCount <= 0 {
		c.Workflow.WorkerCount = defaultWorkerCount
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	c.Workflow.DefaultMode = strings.ToLower(strings.TrimSpace(c.Workflow.DefaultMode))
	if c.Workflow.DefaultMode == "" {
		c.Workflow.DefaultMode = defaultDeckMode
	}
}

func (c *Config) normalizeProviders() {
	if key := strings.TrimSpace(os.Getenv("SLIDECAST_LLM_API_KEY")); key != "" && strings.TrimSpace(c.LLM.APIKey) == "" {
		c.LLM.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv("SLIDECAST_TTS_API_KEY")); key != "" && strings.TrimSpace(c.TTS.APIKey) == "" {
		c.TTS.APIKey = key
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if len(c.LLM.AllowedModels) == 0 {
		c.LLM.AllowedModels = []string{c.LLM.Model}
	}
	if strings.TrimSpace(c.LLM.SystemPrompt) == "" {
		c.LLM.SystemPrompt = defaultScriptSystemPrompt
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}

	if strings.TrimSpace(c.TTS.BaseURL) == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	if strings.TrimSpace(c.TTS.Model) == "" {
		c.TTS.Model = defaultTTSModel
	}
	if len(c.TTS.AllowedModels) == 0 {
		c.TTS.AllowedModels = []string{c.TTS.Model}
	}
	if strings.TrimSpace(c.TTS.DefaultVoice) == "" {
		c.TTS.DefaultVoice = defaultTTSVoice
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	if c.TTS.Voice.Stability == 0 {
		c.TTS.Voice.Stability = defaultVoiceStability
	}
	if c.TTS.Voice.SimilarityBoost == 0 {
		c.TTS.Voice.SimilarityBoost = defaultVoiceSimilarity
	}
}

func (c *Config) normalizeTools() {
	setDefault := func(field *string, fallback string) {
		if strings.TrimSpace(*field) == "" {
			*field = fallback
		}
	}
	setDefault(&c.Tools.Soffice, "soffice")
	setDefault(&c.Tools.Pdftoppm, "pdftoppm")
	setDefault(&c.Tools.Pdftotext, "pdftotext")
	setDefault(&c.Tools.Tesseract, "tesseract")
	setDefault(&c.Tools.FFmpeg, "ffmpeg")
	setDefault(&c.Tools.FFprobe, "ffprobe")
	setDefault(&c.Tools.OCRLanguage, defaultOCRLanguage)
	if c.Tools.RasterDPI <= 0 {
		c.Tools.RasterDPI = defaultRasterDPI
	}
	if c.Ingest.MinTextChars < 0 {
		c.Ingest.MinTextChars = defaultMinTextChars
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
