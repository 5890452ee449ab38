package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jellysync/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "check",
		Aliases: []string{"preflight"},
		Short:   "Check directories, the state index and server connectivity",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := commandRunContext(cmd)
			defer stop()

			var pinger preflight.Pinger
			client, resolveErr := ctx.client()
			if resolveErr == nil {
				pinger = client
			}
			results := preflight.RunAll(runCtx, cfg, pinger, resolveErr)

			if ctx.flags.json {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Preflight", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return &exitError{code: exitFailure, err: fmt.Errorf("%d check(s) failed", len(failed))}
			}
			return nil
		},
	}
}
