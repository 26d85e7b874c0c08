package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateVoice(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	switch c.Workflow.DefaultMode {
	case "review", "one_shot":
	default:
		return fmt.Errorf("workflow.default_mode must be \"review\" or \"one_shot\", got %q", c.Workflow.DefaultMode)
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateVoice() error {
	check := func(name string, value float64) error {
		if value < 0 || value > 1 {
			return fmt.Errorf("tts.voice.%s must be between 0 and 1", name)
		}
		return nil
	}
	if err := check("stability", c.TTS.Voice.Stability); err != nil {
		return err
	}
	if err := check("similarity_boost", c.TTS.Voice.SimilarityBoost); err != nil {
		return err
	}
	return check("style", c.TTS.Voice.Style)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
}
