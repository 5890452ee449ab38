// Package services defines shared utilities consumed by the sync engine and
// its remote integrations.
//
// Key responsibilities:
//   - Context helpers that stamp item hash identifiers, sync phases, file keys,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every failure carries a
//     stable reason code and a retryable/terminal classification.
//
// Use these helpers when wiring new engine logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
