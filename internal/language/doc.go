// Package language normalizes the language tags Jellyfin attaches to
// subtitle streams.
//
// Servers report ISO 639-1, ISO 639-2/T, ISO 639-2/B or plain English names
// depending on how the file was tagged. Local file names and the
// subtitle_languages filter both use the ISO 639-2/T form returned by ToISO3.
package language
