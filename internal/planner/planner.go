package planner

import (
	"jellysync/internal/manifest"
	"jellysync/internal/state"
)

// Action is the per-file transfer decision.
type Action string

const (
	ActionSkip        Action = "skip"
	ActionFetchFull   Action = "fetch-full"
	ActionFetchResume Action = "fetch-resume"
)

// Step pairs a manifest file with its action. Offset is the resume point for
// ActionFetchResume and zero otherwise.
type Step struct {
	File   manifest.FileDescriptor
	Action Action
	Reason string
	Offset int64
}

// Plan is the ordered transfer plan of one item. Order follows the manifest.
type Plan struct {
	ItemHashID string
	Steps      []Step
}

// Build diffs files against snap.
func Build(files []manifest.FileDescriptor, snap state.Snapshot) Plan {
	plan := Plan{Steps: make([]Step, 0, len(files))}
	for _, fd := range files {
		if plan.ItemHashID == "" {
			plan.ItemHashID = fd.ItemHashID
		}
		var rec *state.Record
		if r, ok := snap[fd.Key]; ok {
			rec = &r
		}
		plan.Steps = append(plan.Steps, Decide(fd, rec))
	}
	return plan
}

// Decide returns the step for one file given its record, which may be nil.
func Decide(fd manifest.FileDescriptor, rec *state.Record) Step {
	full := func(reason string) Step {
		return Step{File: fd, Action: ActionFetchFull, Reason: reason}
	}
	if rec == nil {
		return full("not downloaded")
	}

	switch rec.State {
	case state.StateComplete:
		switch {
		case rec.Path != fd.RelPath:
			return full("path changed")
		case rec.OnDisk < 0:
			return full("missing on disk")
		case rec.OnDisk != rec.Size:
			return full("size on disk differs")
		case fd.Checksum != "" && rec.Checksum != "":
			if fd.Checksum != rec.Checksum {
				return full("checksum changed")
			}
			return Step{File: fd, Action: ActionSkip, Reason: "checksum matches"}
		case fd.SizeKnown() && fd.Size != rec.Size:
			return full("size changed")
		case fd.Version != "" && fd.Version != rec.Version:
			return full("version changed")
		}
		return Step{File: fd, Action: ActionSkip, Reason: "up to date"}

	case state.StatePartial:
		switch {
		case !fd.SizeKnown():
			return full("size unknown")
		case fd.Version != rec.Version:
			return full("version changed")
		case fd.Size != rec.Size:
			return full("size changed")
		case !rec.Resumable() || rec.BytesWritten >= fd.Size:
			return full("no resumable prefix")
		case rec.Staged < rec.BytesWritten:
			return full("staged bytes missing")
		}
		return Step{File: fd, Action: ActionFetchResume, Reason: "resume", Offset: rec.BytesWritten}
	}
	return full(string(rec.State))
}

// Pending returns the steps that transfer bytes.
func (p Plan) Pending() []Step {
	out := make([]Step, 0, len(p.Steps))
	for _, step := range p.Steps {
		if step.Action != ActionSkip {
			out = append(out, step)
		}
	}
	return out
}

// Count returns how many steps carry action a.
func (p Plan) Count(a Action) int {
	n := 0
	for _, step := range p.Steps {
		if step.Action == a {
			n++
		}
	}
	return n
}

// RemainingBytes is the number of known bytes still to transfer. Files of
// unknown size contribute nothing.
func (p Plan) RemainingBytes() int64 {
	var total int64
	for _, step := range p.Steps {
		if step.Action == ActionSkip || !step.File.SizeKnown() {
			continue
		}
		total += step.File.Size - step.Offset
	}
	return total
}
