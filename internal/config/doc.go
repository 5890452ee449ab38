// Package config loads, normalizes, and validates jellysync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// JELLYFIN_URL and JELLYFIN_TOKEN. Server profiles are resolved per invocation
// into a Server value that callers pass to the engine explicitly.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
