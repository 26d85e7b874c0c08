// Package config loads, normalizes, and validates slidecast's TOML
// configuration. It doubles as the settings provider for the pipeline:
// model allowlists, voice defaults, soft limits, admission limits, and
// external tool locations all resolve through it.
package config
