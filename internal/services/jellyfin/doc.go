// Package jellyfin is the HTTP client for the remote Jellyfin server.
//
// It covers the small API surface the sync engine depends on: item lookup,
// text search, season and episode enumeration, and authenticated byte-range
// streaming of media, subtitle, artwork and metadata endpoints. Every failure
// is tagged with a services marker so callers can tell missing items, auth
// problems and transient outages apart without inspecting HTTP details.
package jellyfin
