package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sethvargo/go-retry"

	"jellysync/internal/logging"
	"jellysync/internal/manifest"
	"jellysync/internal/planner"
	"jellysync/internal/resolver"
	"jellysync/internal/services"
	"jellysync/internal/state"
	"jellysync/internal/transfer"
)

// Resolver resolves user input and flattens containers.
type Resolver interface {
	Resolve(ctx context.Context, input string) (resolver.Resolution, error)
	Expand(ctx context.Context, ref manifest.RemoteItemRef) ([]manifest.RemoteItemRef, error)
}

// ManifestBuilder lists the files of a leaf item.
type ManifestBuilder interface {
	Build(ctx context.Context, ref manifest.RemoteItemRef) ([]manifest.FileDescriptor, error)
}

// StateIndex provides the local view the planner diffs against.
type StateIndex interface {
	Snapshot(ctx context.Context, itemHashID, root string) (state.Snapshot, error)
	PathOwner(ctx context.Context, relPath, itemHashID string) (string, error)
}

// UnresolvedError reports input that is not an item identifier. Candidates
// holds the search matches for it, which may be empty.
type UnresolvedError struct {
	Input      string
	Candidates []manifest.RemoteItemRef
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: %q is not an item identifier (%d matching items)",
		services.ErrInvalidIdentifier, e.Input, len(e.Candidates))
}

func (e *UnresolvedError) Unwrap() error { return services.ErrInvalidIdentifier }

// Executor runs plan steps.
type Executor interface {
	Execute(ctx context.Context, step planner.Step) transfer.Outcome
}

// Options configures an Orchestrator.
type Options struct {
	// Root is the media directory; snapshots measure final files below it.
	Root   string
	Policy Policy
	Logger *slog.Logger
}

// Orchestrator is the only component that knows all others.
type Orchestrator struct {
	resolver Resolver
	builder  ManifestBuilder
	index    StateIndex
	exec     Executor
	root     string
	policy   Policy
	logger   *slog.Logger
}

// New wires an orchestrator.
func New(resolver Resolver, builder ManifestBuilder, index StateIndex, exec Executor, opts Options) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		builder:  builder,
		index:    index,
		exec:     exec,
		root:     opts.Root,
		policy:   opts.Policy.normalized(),
		logger:   logging.NewComponentLogger(opts.Logger, "syncer"),
	}
}

// Sync resolves identifier, expands it to leaf items and syncs each in turn.
// The error is non-nil only when resolution fails and nothing was attempted;
// per-item and per-file failures are reported in the Report. Free-text input
// fails with an *UnresolvedError listing the items it matched.
func (o *Orchestrator) Sync(ctx context.Context, identifier string) (Report, error) {
	report := Report{Input: identifier}
	refs, err := o.resolve(ctx, identifier)
	if err != nil {
		report.Status = StatusFailed
		return report, err
	}

	for i, ref := range refs {
		if ctx.Err() != nil {
			for _, rest := range refs[i:] {
				report.Results = append(report.Results, canceledResult(rest, ctx.Err()))
			}
			break
		}
		report.Results = append(report.Results, o.SyncItem(ctx, ref))
	}
	report.finish()

	o.logger.Info("sync finished",
		logging.String(logging.FieldEventType, "sync_finished"),
		logging.String("input", identifier),
		logging.String("status", string(report.Status)),
		logging.Int("items", len(report.Results)),
		logging.Int64("transferred_bytes", report.Transferred()),
	)
	return report, nil
}

// PlanOnly resolves identifier and returns each leaf item's plan without
// transferring anything or touching the state index.
func (o *Orchestrator) PlanOnly(ctx context.Context, identifier string) ([]ItemPlan, error) {
	refs, err := o.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	plans := make([]ItemPlan, 0, len(refs))
	for _, ref := range refs {
		itemCtx := services.WithStage(services.WithItem(ctx, ref.HashID), string(PhasePlanning))
		plan, _, err := o.plan(itemCtx, ref)
		plans = append(plans, ItemPlan{Item: ref, Plan: plan, Err: err})
	}
	return plans, nil
}

// SyncItem syncs one leaf item: plan it, then transfer its pending files.
func (o *Orchestrator) SyncItem(ctx context.Context, ref manifest.RemoteItemRef) Result {
	ctx = services.WithItem(ctx, ref.HashID)
	result := Result{Item: ref, Phase: PhasePlanning}
	logger := logging.WithContext(ctx, o.logger)

	plan, files, err := o.plan(services.WithStage(ctx, string(PhasePlanning)), ref)
	if err != nil {
		result.Err = err
		result.Reason = services.Reason(err)
		result.finish()
		logging.ErrorWithContext(logger, "item planning failed", "item_plan_failed",
			logging.String("title", ref.Label()),
			logging.String(logging.FieldReason, result.Reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
		return result
	}
	result.Plan = plan
	logger.Info("item planned",
		logging.String(logging.FieldEventType, "item_planned"),
		logging.String("title", ref.Label()),
		logging.Int("files", len(files)),
		logging.Int("skip", plan.Count(planner.ActionSkip)),
		logging.Int("fetch_full", plan.Count(planner.ActionFetchFull)),
		logging.Int("fetch_resume", plan.Count(planner.ActionFetchResume)),
		logging.Int64("remaining_bytes", plan.RemainingBytes()),
	)

	result.Phase = PhaseTransferring
	result.Files = o.transferAll(services.WithStage(ctx, string(PhaseTransferring)), ref, plan)
	result.finish()
	for _, f := range result.Files {
		if f.Err != nil && result.Err == nil {
			result.Err = f.Err
			result.Reason = f.Reason
		}
	}

	logger.Info("item finished",
		logging.String(logging.FieldEventType, "item_finished"),
		logging.String("title", ref.Label()),
		logging.String("status", string(result.Status)),
	)
	return result
}

func (o *Orchestrator) resolve(ctx context.Context, identifier string) ([]manifest.RemoteItemRef, error) {
	ctx = services.WithStage(ctx, string(PhaseResolving))
	var res resolver.Resolution
	if err := o.retryRemote(ctx, func(ctx context.Context) error {
		var err error
		res, err = o.resolver.Resolve(ctx, identifier)
		return err
	}); err != nil {
		return nil, err
	}
	if res.Item == nil {
		return nil, &UnresolvedError{Input: identifier, Candidates: res.Candidates}
	}
	ref := *res.Item

	var refs []manifest.RemoteItemRef
	if err := o.retryRemote(ctx, func(ctx context.Context) error {
		var err error
		refs, err = o.resolver.Expand(ctx, ref)
		return err
	}); err != nil {
		return nil, err
	}
	return refs, nil
}

func (o *Orchestrator) plan(ctx context.Context, ref manifest.RemoteItemRef) (planner.Plan, []manifest.FileDescriptor, error) {
	var files []manifest.FileDescriptor
	if err := o.retryRemote(ctx, func(ctx context.Context) error {
		var err error
		files, err = o.builder.Build(ctx, ref)
		return err
	}); err != nil {
		return planner.Plan{ItemHashID: ref.HashID}, nil, err
	}
	files, err := o.claimPaths(ctx, ref, files)
	if err != nil {
		return planner.Plan{ItemHashID: ref.HashID}, nil, err
	}
	snap, err := o.index.Snapshot(ctx, ref.HashID, o.root)
	if err != nil {
		return planner.Plan{ItemHashID: ref.HashID}, nil, err
	}
	return planner.Build(files, snap), files, nil
}

// claimPaths keeps two items from sharing local files. When any path of ref
// is already recorded for another item, all of ref's files move to names
// tagged with its hash identifier.
func (o *Orchestrator) claimPaths(ctx context.Context, ref manifest.RemoteItemRef, files []manifest.FileDescriptor) ([]manifest.FileDescriptor, error) {
	for _, fd := range files {
		owner, err := o.index.PathOwner(ctx, fd.RelPath, ref.HashID)
		if err != nil {
			return nil, err
		}
		if owner == "" {
			continue
		}
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "local path taken by another item",
			"item_path_conflict",
			logging.String("path", fd.RelPath),
			logging.String("owner", owner),
			logging.String(logging.FieldImpact, "files are saved under names tagged with the item id"),
			logging.String(logging.FieldErrorHint, "two server items share a title and year"),
		)
		return manifest.Disambiguate(ref, files), nil
	}
	return files, nil
}

// retryRemote retries fn while it fails with RemoteUnavailable.
func (o *Orchestrator) retryRemote(ctx context.Context, fn func(context.Context) error) error {
	var last error
	err := retry.Do(ctx, o.policy.backoff(), func(ctx context.Context) error {
		last = fn(ctx)
		if last != nil && errors.Is(last, services.ErrRemoteUnavailable) && services.Reason(last) != services.ReasonCanceled {
			o.logger.Debug("remote call failed, retrying", logging.Error(last))
			return retry.RetryableError(last)
		}
		return last
	})
	if err != nil && last != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return last
	}
	return err
}

func canceledResult(ref manifest.RemoteItemRef, cause error) Result {
	res := Result{
		Item:   ref,
		Phase:  PhaseFailed,
		Status: StatusFailed,
		Err:    services.Wrap(services.ErrTransferFailed, string(PhaseResolving), "schedule", "sync canceled before item started", cause),
	}
	res.Reason = services.Reason(res.Err)
	return res
}

func hintFor(err error) string {
	switch services.Reason(err) {
	case services.ReasonAuth:
		return "check the profile token and user id"
	case services.ReasonRemoteUnavailable:
		return "check that the server is reachable and retry"
	case services.ReasonEmptyManifest:
		return "the item has no downloadable media"
	case services.ReasonNotFound:
		return "the item no longer exists on the server"
	default:
		return "see the error for details"
	}
}
