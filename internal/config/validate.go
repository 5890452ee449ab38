package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProfiles(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.MediaDir == "" {
		return errors.New("paths.media_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateProfiles() error {
	for name, profile := range c.Profiles {
		if strings.TrimSpace(name) == "" {
			return errors.New("profiles: profile name must not be empty")
		}
		if profile.URL == "" {
			continue
		}
		if err := validateServerURL(profile.URL); err != nil {
			return fmt.Errorf("profiles.%s.url: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.concurrency":             c.Sync.Concurrency,
		"sync.max_attempts":            c.Sync.MaxAttempts,
		"sync.initial_backoff_ms":      c.Sync.InitialBackoffMillis,
		"sync.max_backoff_ms":          c.Sync.MaxBackoffMillis,
		"sync.request_timeout_seconds": c.Sync.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Sync.Concurrency > maxConcurrency {
		return fmt.Errorf("sync.concurrency must be at most %d", maxConcurrency)
	}
	if c.Sync.MaxBackoffMillis < c.Sync.InitialBackoffMillis {
		return errors.New("sync.max_backoff_ms must be >= sync.initial_backoff_ms")
	}
	if c.Sync.CheckpointBytes <= 0 {
		return errors.New("sync.checkpoint_bytes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func validateServerURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("host must be set")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
