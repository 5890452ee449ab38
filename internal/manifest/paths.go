package manifest

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	textlang "golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"jellysync/internal/language"
	"jellysync/internal/services/jellyfin"
)

const (
	moviesDir = "Movies"
	showsDir  = "Shows"
	untitled  = "Untitled"
)

var lower = cases.Lower(textlang.Und)

// BasePath is the library path of an item's media file without extension.
// Paths always use forward slashes.
func BasePath(ref RemoteItemRef) string {
	switch ref.Kind {
	case jellyfin.KindEpisode:
		series := SanitizeName(ref.SeriesName)
		episode := fmt.Sprintf("S%02dE%02d", ref.SeasonNumber, ref.EpisodeNumber)
		name := SanitizeName(fmt.Sprintf("%s - %s - %s", ref.SeriesName, episode, ref.Title))
		return path.Join(showsDir, series, fmt.Sprintf("Season %02d", ref.SeasonNumber), name)
	default:
		title := ref.Title
		if ref.Year > 0 {
			title = fmt.Sprintf("%s (%d)", ref.Title, ref.Year)
		}
		title = SanitizeName(title)
		return path.Join(moviesDir, title, title)
	}
}

// Disambiguate renames files laid out under BasePath(ref) so their names
// carry the item's hash identifier, for items whose title and year collide
// with another item already in the library. The directory is kept.
func Disambiguate(ref RemoteItemRef, files []FileDescriptor) []FileDescriptor {
	base := BasePath(ref)
	tagged := base + " [" + ref.HashID + "]"
	out := make([]FileDescriptor, len(files))
	for i, fd := range files {
		if rest, ok := strings.CutPrefix(fd.RelPath, base); ok {
			fd.RelPath = tagged + rest
		}
		out[i] = fd
	}
	return out
}

// SanitizeName makes a single path component safe on common filesystems. It
// normalizes to NFC, turns path separators into dashes, and drops characters
// Windows and SMB shares reject.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('-')
		case strings.ContainsRune(`<>:"|?*`, r):
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	out = strings.TrimRight(out, ". ")
	if out == "" {
		return untitled
	}
	return out
}

// subtitleExtension maps a Jellyfin subtitle codec to the extension of the
// delivered stream.
func subtitleExtension(codec string) string {
	switch lower.String(strings.TrimSpace(codec)) {
	case "ass":
		return "ass"
	case "ssa":
		return "ssa"
	case "webvtt", "vtt":
		return "vtt"
	default:
		return "srt"
	}
}

func subtitleLanguage(lang string) string {
	return language.ToISO3(lang)
}
