package manifest

import (
	"context"
	"log/slog"
	"sort"

	"jellysync/internal/language"
	"jellysync/internal/logging"
	"jellysync/internal/services"
	"jellysync/internal/services/jellyfin"
)

// Source is the part of the Jellyfin client the builder needs.
type Source interface {
	GetItem(ctx context.Context, id string) (*jellyfin.Item, error)
	DownloadURL(itemID string) string
	SubtitleURL(itemID, sourceID string, index int, format string) string
	ImageURL(itemID, imageType string, index int, tag string) string
	ItemURL(itemID string) string
}

// Options selects which sidecars are included next to the media file.
type Options struct {
	Subtitles bool
	Artwork   bool
	Metadata  bool
	// Languages limits subtitles to these languages; empty keeps all.
	Languages []string
}

// AllSidecars includes every sidecar kind.
func AllSidecars() Options {
	return Options{Subtitles: true, Artwork: true, Metadata: true}
}

// Builder produces manifests from live server data. It never caches: remote
// content can change between invocations.
type Builder struct {
	source    Source
	opts      Options
	languages language.Set
	logger    *slog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(source Source, opts Options, logger *slog.Logger) *Builder {
	return &Builder{
		source:    source,
		opts:      opts,
		languages: language.NewSet(opts.Languages),
		logger:    logging.NewComponentLogger(logger, "manifest"),
	}
}

// Build re-fetches ref and returns its files in transfer priority order.
// Network and auth failures come back as remote-unavailable errors without
// retrying; an item with nothing to download is an empty-manifest error.
func (b *Builder) Build(ctx context.Context, ref RemoteItemRef) ([]FileDescriptor, error) {
	if ref.Kind != jellyfin.KindMovie && ref.Kind != jellyfin.KindEpisode {
		return nil, services.Wrap(services.ErrEmptyManifest, "manifest", "build",
			"item kind "+ref.Kind+" has no files of its own", nil)
	}
	item, err := b.source.GetItem(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	files := b.describe(ref, *item)
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrEmptyManifest, "manifest", "build",
			"item "+ref.HashID+" has no media source", nil)
	}
	logging.WithContext(ctx, b.logger).Debug("manifest built",
		logging.String(logging.FieldItem, ref.HashID),
		logging.Int("files", len(files)),
	)
	return files, nil
}

// describe returns nil for an item without a media source; sidecars are only
// fetched alongside media.
func (b *Builder) describe(ref RemoteItemRef, item jellyfin.Item) []FileDescriptor {
	if len(item.MediaSources) == 0 {
		return nil
	}
	source := item.MediaSources[0]
	base := BasePath(ref)

	size := source.Size
	if size <= 0 {
		size = -1
	}
	files := []FileDescriptor{{
		ItemHashID: ref.HashID,
		Role:       RoleMedia,
		Key:        KeyMedia,
		URL:        b.source.DownloadURL(item.ID),
		Size:       size,
		RelPath:    base + "." + primaryContainer(source.Container),
	}}

	if b.opts.Subtitles {
		files = append(files, b.subtitles(ref, item, source, base)...)
	}
	if b.opts.Artwork {
		files = append(files, b.artwork(ref, item, base)...)
	}
	if b.opts.Metadata {
		files = append(files, FileDescriptor{
			ItemHashID: ref.HashID,
			Role:       RoleMetadata,
			Key:        KeyMetadata,
			URL:        b.source.ItemURL(item.ID),
			Size:       -1,
			Version:    item.Etag,
			RelPath:    base + ".json",
		})
	}
	return files
}

func (b *Builder) subtitles(ref RemoteItemRef, item jellyfin.Item, source jellyfin.MediaSource, base string) []FileDescriptor {
	streams := make([]jellyfin.MediaStream, 0, len(source.MediaStreams))
	for _, stream := range source.MediaStreams {
		if stream.Type == "Subtitle" && stream.IsExternal && stream.IsTextSubtitleStream && b.languages.Allows(stream.Language) {
			streams = append(streams, stream)
		}
	}
	sort.SliceStable(streams, func(i, j int) bool { return streams[i].Index < streams[j].Index })

	used := map[string]bool{}
	files := make([]FileDescriptor, 0, len(streams))
	for _, stream := range streams {
		ext := subtitleExtension(stream.Codec)
		stem := base + "." + subtitleLanguage(stream.Language)
		if stream.IsForced {
			stem += ".forced"
		}
		rel := stem + "." + ext
		if used[rel] {
			rel = stem + "." + itoa(stream.Index) + "." + ext
		}
		used[rel] = true
		files = append(files, FileDescriptor{
			ItemHashID: ref.HashID,
			Role:       RoleSubtitle,
			Key:        SubtitleKey(stream.Index),
			URL:        b.source.SubtitleURL(item.ID, source.ID, stream.Index, ext),
			Size:       -1,
			Version:    item.Etag,
			RelPath:    rel,
		})
	}
	return files
}

func (b *Builder) artwork(ref RemoteItemRef, item jellyfin.Item, base string) []FileDescriptor {
	var files []FileDescriptor
	if tag := item.ImageTags["Primary"]; tag != "" {
		suffix := "-poster.jpg"
		if ref.Kind == jellyfin.KindEpisode {
			suffix = "-thumb.jpg"
		}
		files = append(files, FileDescriptor{
			ItemHashID: ref.HashID,
			Role:       RoleArtwork,
			Key:        KeyPoster,
			URL:        b.source.ImageURL(item.ID, "Primary", 0, tag),
			Size:       -1,
			Version:    tag,
			RelPath:    base + suffix,
		})
	}
	if len(item.BackdropImageTags) > 0 && item.BackdropImageTags[0] != "" {
		tag := item.BackdropImageTags[0]
		files = append(files, FileDescriptor{
			ItemHashID: ref.HashID,
			Role:       RoleArtwork,
			Key:        KeyBackdrop,
			URL:        b.source.ImageURL(item.ID, "Backdrop", 0, tag),
			Size:       -1,
			Version:    tag,
			RelPath:    base + "-fanart.jpg",
		})
	}
	return files
}
