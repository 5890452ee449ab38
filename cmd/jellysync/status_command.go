package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"jellysync/internal/hashid"
	"jellysync/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [hashid]",
		Short: "Show files tracked by the local state index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIndex(func(idx *state.Index) error {
				runCtx, stop := commandRunContext(cmd)
				defer stop()

				var records []state.Record
				var err error
				if len(args) == 1 {
					id := strings.TrimSpace(args[0])
					if _, decodeErr := hashid.Decode(id); decodeErr != nil {
						return decodeErr
					}
					records, err = idx.ListItem(runCtx, id)
				} else {
					records, err = idx.List(runCtx)
				}
				if err != nil {
					return err
				}

				if ctx.flags.json {
					return writeJSON(cmd, newRecordViews(records))
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No files tracked")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Item", "File", "State", "Progress", "Attempts", "Updated"},
					recordRows(records),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func recordRows(records []state.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ItemHashID,
			rec.Path,
			recordState(rec),
			recordProgress(rec),
			fmt.Sprintf("%d", rec.Attempts),
			humanize.Time(rec.UpdatedAt),
		})
	}
	return rows
}

func recordState(rec state.Record) string {
	if rec.LastError != "" && rec.State != state.StateComplete {
		return string(rec.State) + ": " + truncate(rec.LastError, 40)
	}
	return string(rec.State)
}

func recordProgress(rec state.Record) string {
	if rec.State == state.StateComplete || rec.Size <= 0 {
		return humanize.IBytes(uint64(max(rec.BytesWritten, 0)))
	}
	return fmt.Sprintf("%s / %s", humanize.IBytes(uint64(rec.BytesWritten)), humanize.IBytes(uint64(rec.Size)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
