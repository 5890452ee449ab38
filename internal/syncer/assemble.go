package syncer

import (
	"log/slog"

	"jellysync/internal/config"
	"jellysync/internal/manifest"
	"jellysync/internal/resolver"
	"jellysync/internal/services/jellyfin"
	"jellysync/internal/state"
	"jellysync/internal/transfer"
)

// Assemble wires the standard components for one invocation against client
// and idx using the [paths] and [sync] sections of cfg.
func Assemble(cfg *config.Config, client *jellyfin.Client, idx *state.Index, logger *slog.Logger, progress transfer.ProgressFunc) *Orchestrator {
	res := resolver.New(client, client.Name(), logger)
	builder := manifest.NewBuilder(client, manifest.Options{
		Subtitles: cfg.Sync.IncludeSubtitles,
		Artwork:   cfg.Sync.IncludeArtwork,
		Metadata:  cfg.Sync.IncludeMetadata,
		Languages: cfg.Sync.SubtitleLanguages,
	}, logger)
	exec := transfer.NewExecutor(client, idx, transfer.Options{
		Root:            cfg.Paths.MediaDir,
		CheckpointBytes: cfg.Sync.CheckpointBytes,
		Limiter:         transfer.NewLimiter(cfg.Sync.MaxBytesPerSecond),
		Progress:        progress,
		Logger:          logger,
	})
	return New(res, builder, idx, exec, Options{
		Root:   cfg.Paths.MediaDir,
		Policy: PolicyFromConfig(cfg),
		Logger: logger,
	})
}
