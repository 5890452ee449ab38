package testsupport

import (
	"path/filepath"
	"testing"

	"jellysync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.MediaDir = filepath.Join(base, "media")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Sync.InitialBackoffMillis = 1
	cfgVal.Sync.MaxBackoffMillis = 5
	cfgVal.Sync.CheckpointBytes = 1024

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithProfile registers a server profile and makes it the default.
func WithProfile(name string, server config.Server) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Profiles[name] = config.Profile{URL: server.URL, UserID: server.UserID, Token: server.Token}
		b.cfg.Default = name
	}
}

// WithConcurrency overrides the transfer worker count.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.Concurrency = n
	}
}

// WithCheckpointBytes overrides how often transfers persist progress.
func WithCheckpointBytes(n int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.CheckpointBytes = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
