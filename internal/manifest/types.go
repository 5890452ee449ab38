package manifest

import (
	"fmt"
	"strings"

	"jellysync/internal/hashid"
	"jellysync/internal/services/jellyfin"
)

// RemoteItemRef identifies one remote item for the duration of an invocation.
type RemoteItemRef struct {
	Server        string
	ID            string
	HashID        string
	Title         string
	Kind          string
	Year          int
	SeriesName    string
	SeriesID      string
	SeasonID      string
	SeasonNumber  int
	EpisodeNumber int
	Container     string
	Size          int64
	Etag          string
}

// FromItem builds a reference from a server item. The item id must be a
// Jellyfin GUID.
func FromItem(server string, item jellyfin.Item) (RemoteItemRef, error) {
	id, err := hashid.Canonical(item.ID)
	if err != nil {
		return RemoteItemRef{}, err
	}
	hash, err := hashid.Encode(id)
	if err != nil {
		return RemoteItemRef{}, err
	}
	ref := RemoteItemRef{
		Server:     server,
		ID:         id,
		HashID:     hash,
		Title:      item.Name,
		Kind:       item.Type,
		Year:       item.ProductionYear,
		SeriesName: item.SeriesName,
		SeriesID:   item.SeriesID,
		SeasonID:   item.SeasonID,
		Etag:       item.Etag,
	}
	switch item.Type {
	case jellyfin.KindEpisode:
		ref.SeasonNumber = derefInt(item.ParentIndexNumber)
		ref.EpisodeNumber = derefInt(item.IndexNumber)
	case jellyfin.KindSeason:
		ref.SeasonNumber = derefInt(item.IndexNumber)
	}
	if len(item.MediaSources) > 0 {
		ref.Container = primaryContainer(item.MediaSources[0].Container)
		ref.Size = item.MediaSources[0].Size
	}
	return ref, nil
}

// Label is a short human description used in logs and reports.
func (r RemoteItemRef) Label() string {
	switch r.Kind {
	case jellyfin.KindEpisode:
		return fmt.Sprintf("%s S%02dE%02d %s", r.SeriesName, r.SeasonNumber, r.EpisodeNumber, r.Title)
	case jellyfin.KindSeason:
		if r.SeriesName != "" {
			return r.SeriesName + " " + r.Title
		}
		return r.Title
	case jellyfin.KindMovie:
		if r.Year > 0 {
			return fmt.Sprintf("%s (%d)", r.Title, r.Year)
		}
	}
	return r.Title
}

// Role classifies a file within a manifest.
type Role string

const (
	RoleMedia    Role = "media"
	RoleSubtitle Role = "subtitle"
	RoleArtwork  Role = "artwork"
	RoleMetadata Role = "metadata"
)

// Well-known file keys. Subtitles use SubtitleKey.
const (
	KeyMedia    = "media"
	KeyPoster   = "artwork:primary"
	KeyBackdrop = "artwork:backdrop"
	KeyMetadata = "metadata"
)

// SubtitleKey is the file key of the subtitle stream with the given index.
func SubtitleKey(index int) string {
	return fmt.Sprintf("subtitle:%d", index)
}

// FileDescriptor is one transferable file of an item.
type FileDescriptor struct {
	ItemHashID string
	Role       Role
	// Key identifies the file within its item; local records are keyed by
	// (ItemHashID, Key).
	Key string
	URL string
	// Size is the expected byte size, or <= 0 when the server does not report it.
	Size int64
	// Checksum is the expected content checksum, empty when the server supplies none.
	Checksum string
	// Version is an opaque remote revision token. Empty means the file is
	// compared by size and checksum only.
	Version string
	RelPath string
}

// SizeKnown reports whether the server announced the file size.
func (f FileDescriptor) SizeKnown() bool { return f.Size > 0 }

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func primaryContainer(container string) string {
	first, _, _ := strings.Cut(container, ",")
	first = strings.ToLower(strings.TrimSpace(first))
	if first == "" {
		return "mkv"
	}
	return first
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
