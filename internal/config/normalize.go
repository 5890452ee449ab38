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
	c.normalizeProfiles()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		c.Paths.MediaDir = defaultMediaDir
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProfiles() {
	c.Default = strings.TrimSpace(c.Default)
	if c.Default == "" {
		c.Default = defaultProfileName
	}
	if c.Profiles == nil {
		c.Profiles = map[string]Profile{}
	}
	for name, profile := range c.Profiles {
		profile.URL = strings.TrimRight(strings.TrimSpace(profile.URL), "/")
		profile.UserID = strings.TrimSpace(profile.UserID)
		profile.Token = strings.TrimSpace(profile.Token)
		c.Profiles[name] = profile
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = defaultConcurrency
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = defaultMaxAttempts
	}
	if c.Sync.InitialBackoffMillis <= 0 {
		c.Sync.InitialBackoffMillis = defaultInitialBackoffMillis
	}
	if c.Sync.MaxBackoffMillis <= 0 {
		c.Sync.MaxBackoffMillis = defaultMaxBackoffMillis
	}
	if c.Sync.CheckpointBytes <= 0 {
		c.Sync.CheckpointBytes = defaultCheckpointBytes
	}
	if c.Sync.MaxBytesPerSecond < 0 {
		c.Sync.MaxBytesPerSecond = 0
	}
	if c.Sync.RequestTimeoutSeconds <= 0 {
		c.Sync.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
