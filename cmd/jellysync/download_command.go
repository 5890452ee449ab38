package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"jellysync/internal/preflight"
	"jellysync/internal/services"
	"jellysync/internal/state"
	"jellysync/internal/syncer"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "download <hashid|title>",
		Short: "Sync a movie, episode, season or series into the media directory",
		Long: "Download resolves the identifier, plans every file against the local state index " +
			"and transfers what is missing. Interrupted files resume where they stopped. " +
			"A title instead of an identifier lists the matching items and downloads nothing.\n\n" +
			"Exit status is 0 when every file is in place, 2 when some files failed and 1 when nothing succeeded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return runPlan(cmd, ctx, args[0])
			}
			return runDownload(cmd, ctx, args[0])
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show the transfer plan without downloading anything")
	return cmd
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <hashid|title>",
		Short: "Show what download would transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, ctx, args[0])
		},
	}
}

func runDownload(cmd *cobra.Command, ctx *commandContext, identifier string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if failed := preflight.Failed(preflight.Directories(cfg)); len(failed) > 0 {
		return fmt.Errorf("%s: %s", failed[0].Name, failed[0].Detail)
	}
	client, err := ctx.client()
	if err != nil {
		return err
	}

	runCtx, stop := commandRunContext(cmd)
	defer stop()

	var report syncer.Report
	err = ctx.withLock(func() error {
		return ctx.withIndex(func(idx *state.Index) error {
			progress := newProgressPrinter(cmd.ErrOrStderr(), !ctx.flags.json && shouldColorize(cmd.ErrOrStderr()))
			orch := syncer.Assemble(cfg, client, idx, ctx.log(), progress.update)
			var syncErr error
			report, syncErr = orch.Sync(runCtx, identifier)
			progress.finish()
			return syncErr
		})
	})
	if err != nil {
		if errors.Is(err, state.ErrLocked) {
			return err
		}
		printCandidates(cmd, ctx, err)
		return describeFailure(identifier, err)
	}

	if ctx.flags.json {
		if err := writeJSON(cmd, newReportView(report)); err != nil {
			return err
		}
	} else {
		renderReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
	}
	return exitForStatus(report.Status)
}

func runPlan(cmd *cobra.Command, ctx *commandContext, identifier string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	client, err := ctx.client()
	if err != nil {
		return err
	}

	runCtx, stop := commandRunContext(cmd)
	defer stop()

	return ctx.withIndex(func(idx *state.Index) error {
		orch := syncer.Assemble(cfg, client, idx, ctx.log(), nil)
		plans, err := orch.PlanOnly(runCtx, identifier)
		if err != nil {
			printCandidates(cmd, ctx, err)
			return describeFailure(identifier, err)
		}
		if ctx.flags.json {
			return writeJSON(cmd, newPlanViews(plans))
		}
		renderPlans(cmd.OutOrStdout(), plans)
		return nil
	})
}

// describeFailure prefixes err with its stable reason code so scripts can
// match on it.
func describeFailure(identifier string, err error) error {
	return fmt.Errorf("%s: %s: %w", identifier, services.Reason(err), err)
}
