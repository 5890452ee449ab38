// Package preflight provides readiness checks for the Jellyfin server and the
// local paths jellysync writes to.
//
// These checks run in two contexts:
//   - "jellysync check" runs RunAll and renders every result.
//   - "jellysync download" runs the directory checks before taking the
//     invocation lock so a misconfigured media directory fails fast.
package preflight
