// Package config provides the configuration schema and loader for the
// techvox session engine.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Relay     RelayConfig     `yaml:"relay"`
	Audio     AudioConfig     `yaml:"audio"`
	Wake      WakeConfig      `yaml:"wake"`
	Vision    VisionConfig    `yaml:"vision"`
	Store     StoreConfig     `yaml:"store"`
	Equipment EquipmentConfig `yaml:"equipment"`
}

// ServerConfig holds control-port and logging settings. The control port
// serves health, status, and metrics endpoints.
type ServerConfig struct {
	// ListenAddr is the TCP address the control port listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// RelayConfig holds the connection settings for the voice relay backend.
type RelayConfig struct {
	// Endpoint is the WebSocket URL of the relay (ws:// or wss://).
	Endpoint string `yaml:"endpoint"`

	// Token authenticates against the relay.
	Token string `yaml:"token"`

	// Instructions is the system prompt sent when a session opens.
	Instructions string `yaml:"instructions"`

	// MaxRetries bounds the reconnect schedule. Zero uses the default (10).
	MaxRetries int `yaml:"max_retries"`

	// HeartbeatInterval is the liveness ping cadence. Zero uses the
	// default (15s); negative disables the heartbeat.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// AudioConfig tunes the capture/playback pipeline.
type AudioConfig struct {
	// PreBufferWindow is how much microphone audio is retained across the
	// connection handshake. Zero uses the default (600ms).
	PreBufferWindow time.Duration `yaml:"pre_buffer_window"`

	// PlaybackWindow sizes the remote-audio playback buffer. Zero uses
	// the default (2s).
	PlaybackWindow time.Duration `yaml:"playback_window"`
}

// WakeConfig configures wake-phrase detection and verification.
type WakeConfig struct {
	// Phrase is the wake phrase (e.g., "hey techvox").
	Phrase string `yaml:"phrase"`

	// PhoneticThreshold overrides the similarity threshold applied when
	// the transcription sounds like the phrase. Zero uses the default.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold overrides the stricter threshold applied otherwise.
	// Zero uses the default.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// VisionConfig holds the inspection vision backend settings.
type VisionConfig struct {
	// URL is the base URL of the vision HTTP API.
	URL string `yaml:"url"`

	// Token authenticates against the vision API.
	Token string `yaml:"token"`

	// Timeout bounds each inspection request. Zero uses the default (30s).
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// PostgresDSN is the connection string for the report store. Empty
	// disables persistence; report and order tools then fail gracefully.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EquipmentConfig identifies the equipment this unit is assigned to.
type EquipmentConfig struct {
	ID    string `yaml:"id"`
	Model string `yaml:"model"`
}
