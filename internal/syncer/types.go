package syncer

import (
	"jellysync/internal/manifest"
	"jellysync/internal/planner"
)

// Phase is the furthest stage an item reached.
type Phase string

const (
	PhaseResolving    Phase = "resolving"
	PhasePlanning     Phase = "planning"
	PhaseTransferring Phase = "transferring"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Status summarises an item or an invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Outcome is the per-file result.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeFetched Outcome = "fetched"
	OutcomeResumed Outcome = "resumed"
	OutcomeFailed  Outcome = "failed"
)

// FileResult reports one manifest file.
type FileResult struct {
	File        manifest.FileDescriptor
	Action      planner.Action
	Outcome     Outcome
	Attempts    int
	Transferred int64
	Size        int64
	Checksum    string
	// Reason is the stable failure code, empty on success.
	Reason string
	Err    error
}

// Result reports one leaf item.
type Result struct {
	Item   manifest.RemoteItemRef
	Plan   planner.Plan
	Files  []FileResult
	Phase  Phase
	Status Status
	Reason string
	Err    error
}

// Report is the outcome of a whole invocation.
type Report struct {
	Input   string
	Results []Result
	Status  Status
}

// ItemPlan is a dry-run plan of one leaf item.
type ItemPlan struct {
	Item manifest.RemoteItemRef
	Plan planner.Plan
	Err  error
}

// Counts tallies file outcomes across the report.
func (r Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 4)
	for _, res := range r.Results {
		for _, f := range res.Files {
			counts[f.Outcome]++
		}
	}
	return counts
}

// Transferred sums the bytes received across the report.
func (r Report) Transferred() int64 {
	var total int64
	for _, res := range r.Results {
		for _, f := range res.Files {
			total += f.Transferred
		}
	}
	return total
}

// aggregate folds unit outcomes into a status: no failures is success,
// nothing but failures is failed, and anything mixed is partial.
func aggregate(succeeded, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

func (r *Result) finish() {
	if r.Err != nil && len(r.Files) == 0 {
		r.Status = StatusFailed
		r.Phase = PhaseFailed
		return
	}
	ok, failed := 0, 0
	for _, f := range r.Files {
		if f.Outcome == OutcomeFailed {
			failed++
		} else {
			ok++
		}
	}
	r.Status = aggregate(ok, failed)
	if r.Status == StatusFailed {
		r.Phase = PhaseFailed
	} else {
		r.Phase = PhaseDone
	}
}

func (r *Report) finish() {
	ok, failed := 0, 0
	for _, res := range r.Results {
		if len(res.Files) == 0 {
			if res.Status == StatusFailed {
				failed++
			} else {
				ok++
			}
			continue
		}
		for _, f := range res.Files {
			if f.Outcome == OutcomeFailed {
				failed++
			} else {
				ok++
			}
		}
	}
	if len(r.Results) == 0 {
		failed++
	}
	r.Status = aggregate(ok, failed)
}
