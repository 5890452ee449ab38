package config

const (
	defaultConfigPath            = "~/.config/jellysync/config.toml"
	defaultProfileName           = "default"
	defaultMediaDir              = "~/media"
	defaultLogDir                = "~/.local/state/jellysync/logs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultConcurrency           = 4
	defaultMaxAttempts           = 4
	defaultInitialBackoffMillis  = 500
	defaultMaxBackoffMillis      = 30_000
	defaultCheckpointBytes       = 8 << 20
	defaultRequestTimeoutSeconds = 30
	maxConcurrency               = 32
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Default:  defaultProfileName,
		Profiles: map[string]Profile{},
		Paths: Paths{
			MediaDir: defaultMediaDir,
			StateDir: defaultStateDir(),
			LogDir:   defaultLogDir,
		},
		Sync: Sync{
			Concurrency:           defaultConcurrency,
			MaxAttempts:           defaultMaxAttempts,
			InitialBackoffMillis:  defaultInitialBackoffMillis,
			MaxBackoffMillis:      defaultMaxBackoffMillis,
			CheckpointBytes:       defaultCheckpointBytes,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			IncludeSubtitles:      true,
			IncludeArtwork:        true,
			IncludeMetadata:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
