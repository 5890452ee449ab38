// Package manifest expands a resolved remote item into the ordered list of
// files a sync transfers for it.
//
// The order is fixed: media first, then subtitles by stream index, then
// artwork, then the metadata sidecar. A sync that stops early therefore still
// leaves the most useful files on disk. Relative paths follow the library
// layout Jellyfin itself scans (Movies/Title (Year)/..., Shows/Series/Season
// NN/...), with sidecars named after the media file.
package manifest
