// Package config provides configuration loading and validation for the
// whispertype recording service. It handles YAML-based configuration
// with per-section struct validation, environment overrides for the ASR
// credentials, and a complete runnable default profile.
package config
