// Package planner decides, per manifest file, whether the local copy can be
// kept, resumed, or must be fetched again. It performs no I/O: the same
// manifest and snapshot always produce the same plan.
package planner
