package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. ${VAR} references are expanded from the environment so secrets
// like tokens and DSNs can stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Relay.Endpoint == "" {
		errs = append(errs, errors.New("relay.endpoint is required"))
	} else if !strings.HasPrefix(cfg.Relay.Endpoint, "ws://") && !strings.HasPrefix(cfg.Relay.Endpoint, "wss://") {
		errs = append(errs, fmt.Errorf("relay.endpoint %q must use ws:// or wss://", cfg.Relay.Endpoint))
	}
	if cfg.Relay.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("relay.max_retries must not be negative, got %d", cfg.Relay.MaxRetries))
	}

	if cfg.Audio.PreBufferWindow < 0 {
		errs = append(errs, errors.New("audio.pre_buffer_window must not be negative"))
	}
	if cfg.Audio.PlaybackWindow < 0 {
		errs = append(errs, errors.New("audio.playback_window must not be negative"))
	}

	if cfg.Wake.Phrase == "" {
		errs = append(errs, errors.New("wake.phrase is required"))
	}
	if t := cfg.Wake.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("wake.phonetic_threshold must be within 0..1, got %g", t))
	}
	if t := cfg.Wake.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("wake.fuzzy_threshold must be within 0..1, got %g", t))
	}

	if cfg.Vision.URL == "" {
		errs = append(errs, errors.New("vision.url is required"))
	}

	if cfg.Equipment.ID == "" {
		errs = append(errs, errors.New("equipment.id is required"))
	}

	return errors.Join(errs...)
}
