package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"jellysync/internal/manifest"
	"jellysync/internal/planner"
	"jellysync/internal/syncer"
)

func renderReport(out io.Writer, report syncer.Report, colorize bool) {
	for _, res := range report.Results {
		for _, line := range renderSectionHeader(res.Item.Label(), colorize) {
			fmt.Fprintln(out, line)
		}
		if len(res.Files) == 0 && res.Err != nil {
			fmt.Fprintln(out, renderStatusLine("item", statusError, res.Reason+": "+res.Err.Error(), colorize))
			continue
		}
		for _, f := range res.Files {
			fmt.Fprintln(out, renderStatusLine(fileLabel(f.File), outcomeKind(f.Outcome), outcomeMessage(f), colorize))
		}
	}

	counts := report.Counts()
	summary := fmt.Sprintf("%d fetched, %d resumed, %d skipped, %d failed, %s transferred",
		counts[syncer.OutcomeFetched],
		counts[syncer.OutcomeResumed],
		counts[syncer.OutcomeSkipped],
		counts[syncer.OutcomeFailed],
		humanize.IBytes(uint64(report.Transferred())),
	)
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderStatusLine("Result", statusForReport(report.Status), string(report.Status)+" ("+summary+")", colorize))
}

func renderPlans(out io.Writer, plans []syncer.ItemPlan) {
	headers := []string{"Item", "File", "Action", "Reason", "Remaining"}
	var rows [][]string
	for _, p := range plans {
		if p.Err != nil {
			rows = append(rows, []string{p.Item.Label(), "", "error", p.Err.Error(), ""})
			continue
		}
		for _, step := range p.Plan.Steps {
			rows = append(rows, []string{
				p.Item.Label(),
				step.File.RelPath,
				string(step.Action),
				step.Reason,
				remainingLabel(step),
			})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "Nothing to plan")
		return
	}
	fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))

	var pending int
	var remaining int64
	for _, p := range plans {
		pending += len(p.Plan.Pending())
		remaining += p.Plan.RemainingBytes()
	}
	fmt.Fprintf(out, "%d file(s) to transfer, %s remaining\n", pending, humanize.IBytes(uint64(remaining)))
}

func remainingLabel(step planner.Step) string {
	if step.Action == planner.ActionSkip {
		return "-"
	}
	if !step.File.SizeKnown() {
		return "unknown"
	}
	return humanize.IBytes(uint64(step.File.Size - step.Offset))
}

func fileLabel(fd manifest.FileDescriptor) string {
	if fd.Role == manifest.RoleMedia {
		return "media"
	}
	return fd.Key
}

func outcomeKind(outcome syncer.Outcome) statusKind {
	switch outcome {
	case syncer.OutcomeFetched, syncer.OutcomeResumed:
		return statusOK
	case syncer.OutcomeFailed:
		return statusError
	default:
		return statusInfo
	}
}

func outcomeMessage(f syncer.FileResult) string {
	var b strings.Builder
	b.WriteString(string(f.Outcome))
	switch f.Outcome {
	case syncer.OutcomeFetched, syncer.OutcomeResumed:
		fmt.Fprintf(&b, " %s", humanize.IBytes(uint64(f.Transferred)))
	case syncer.OutcomeFailed:
		fmt.Fprintf(&b, " (%s after %d attempt(s))", f.Reason, f.Attempts)
	}
	if f.File.RelPath != "" {
		b.WriteString(" " + f.File.RelPath)
	}
	return b.String()
}

func statusForReport(status syncer.Status) statusKind {
	switch status {
	case syncer.StatusSuccess:
		return statusOK
	case syncer.StatusPartial:
		return statusWarn
	default:
		return statusError
	}
}
