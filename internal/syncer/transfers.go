package syncer

import (
	"context"
	"errors"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"jellysync/internal/logging"
	"jellysync/internal/manifest"
	"jellysync/internal/planner"
	"jellysync/internal/services"
	"jellysync/internal/transfer"
)

// transferAll runs the plan's pending steps on a pool of policy.Concurrency
// workers. Results keep plan order. Once ctx is canceled no further step is
// started; those steps are reported failed with reason canceled.
func (o *Orchestrator) transferAll(ctx context.Context, ref manifest.RemoteItemRef, plan planner.Plan) []FileResult {
	results := make([]FileResult, len(plan.Steps))
	var g errgroup.Group
	g.SetLimit(o.policy.Concurrency)

	for i, step := range plan.Steps {
		if step.Action == planner.ActionSkip {
			results[i] = FileResult{
				File:    step.File,
				Action:  step.Action,
				Outcome: OutcomeSkipped,
				Size:    step.File.Size,
			}
			continue
		}
		if ctx.Err() != nil {
			results[i] = canceledFile(step, ctx.Err())
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = canceledFile(step, ctx.Err())
				return nil
			}
			results[i] = o.transferFile(ctx, ref, step)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// transferFile executes one step with retries. A checksum mismatch is
// terminal for the retry loop but earns one extra full fetch against a
// freshly built manifest entry.
func (o *Orchestrator) transferFile(ctx context.Context, ref manifest.RemoteItemRef, step planner.Step) FileResult {
	ctx = services.WithFile(ctx, step.File.Key)
	logger := logging.WithContext(ctx, o.logger)

	res := o.attempt(ctx, step.File, step)
	if errors.Is(res.Err, services.ErrChecksumMismatch) && ctx.Err() == nil {
		logging.WarnWithContext(logger, "verification failed, refetching once",
			"transfer_checksum_mismatch",
			logging.Error(res.Err),
			logging.String(logging.FieldImpact, "file is downloaded again from the start"),
			logging.String(logging.FieldErrorHint, "repeated mismatches mean the server content changed mid-sync"),
		)
		fd := o.refreshDescriptor(ctx, ref, step.File)
		retried := o.attempt(ctx, fd, planner.Step{File: fd, Action: planner.ActionFetchFull, Reason: "checksum mismatch"})
		retried.Attempts += res.Attempts
		res = retried
	}
	res.Action = step.Action
	if res.Err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = services.Reason(res.Err)
		logging.ErrorWithContext(logger, "file failed", "transfer_failed",
			logging.String("path", step.File.RelPath),
			logging.String(logging.FieldReason, res.Reason),
			logging.Int("attempts", res.Attempts),
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, hintFor(res.Err)),
		)
	}
	return res
}

// attempt runs step under the retry policy. Every retry after the first
// re-derives the step from the index so a partially written file resumes.
func (o *Orchestrator) attempt(ctx context.Context, fd manifest.FileDescriptor, step planner.Step) FileResult {
	res := FileResult{File: fd, Action: step.Action}
	var last transfer.Outcome

	err := retry.Do(ctx, o.policy.backoff(), func(ctx context.Context) error {
		if res.Attempts > 0 {
			step = o.replan(ctx, fd, step)
		}
		res.Attempts++
		last = o.exec.Execute(ctx, step)
		res.Transferred += last.Transferred
		if last.Err == nil {
			return nil
		}
		if services.Retryable(last.Err) {
			o.logger.Debug("transfer attempt failed",
				logging.String(logging.FieldFile, fd.Key),
				logging.Int("attempt", res.Attempts),
				logging.Error(last.Err),
			)
			return retry.RetryableError(last.Err)
		}
		return last.Err
	})

	switch {
	case err == nil:
		res.Size = last.Size
		res.Checksum = last.Checksum
		res.Outcome = OutcomeFetched
		if last.Resumed {
			res.Outcome = OutcomeResumed
		}
	case last.Err != nil:
		res.Err = last.Err
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(res.Err, ctxErr) {
			res.Err = services.Wrap(services.ErrTransferFailed, string(PhaseTransferring), "retry", "sync canceled while waiting to retry", ctxErr)
		}
	default:
		res.Err = services.Wrap(services.ErrTransferFailed, string(PhaseTransferring), "retry", "sync canceled before transfer", err)
	}
	return res
}

func (o *Orchestrator) replan(ctx context.Context, fd manifest.FileDescriptor, fallback planner.Step) planner.Step {
	snap, err := o.index.Snapshot(ctx, fd.ItemHashID, o.root)
	if err != nil {
		return fallback
	}
	if rec, ok := snap[fd.Key]; ok {
		return planner.Decide(fd, &rec)
	}
	return planner.Decide(fd, nil)
}

func (o *Orchestrator) refreshDescriptor(ctx context.Context, ref manifest.RemoteItemRef, fd manifest.FileDescriptor) manifest.FileDescriptor {
	files, err := o.builder.Build(ctx, ref)
	if err == nil {
		files, err = o.claimPaths(ctx, ref, files)
	}
	if err != nil {
		o.logger.Debug("manifest refresh failed, reusing descriptor", logging.Error(err))
		return fd
	}
	for _, fresh := range files {
		if fresh.Key == fd.Key {
			return fresh
		}
	}
	return fd
}

func canceledFile(step planner.Step, cause error) FileResult {
	err := services.Wrap(services.ErrTransferFailed, string(PhaseTransferring), "schedule", "sync canceled before transfer", cause)
	return FileResult{
		File:    step.File,
		Action:  step.Action,
		Outcome: OutcomeFailed,
		Reason:  services.Reason(err),
		Err:     err,
	}
}
