// Package main hosts the jellysync CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves the active server profile, opens the
// local state index and hands both to the sync engine in internal/syncer.
// Rendering of search results, plans and sync reports lives here; the engine
// only returns values.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
