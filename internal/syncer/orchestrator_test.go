package syncer_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jellysync/internal/config"
	"jellysync/internal/hashid"
	"jellysync/internal/manifest"
	"jellysync/internal/planner"
	"jellysync/internal/resolver"
	"jellysync/internal/services"
	"jellysync/internal/services/jellyfin"
	"jellysync/internal/state"
	"jellysync/internal/syncer"
	"jellysync/internal/testsupport"
	"jellysync/internal/transfer"
)

const (
	movieID   = "0123456789abcdef0123456789abcdef"
	seriesID  = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	seasonID  = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb1"
	episode1  = "e0000000000000000000000000000001"
	episode2  = "e0000000000000000000000000000002"
	mediaSize = 100 * 1024
)

type env struct {
	cfg    *config.Config
	fake   *testsupport.FakeJellyfin
	client *jellyfin.Client
	idx    *state.Index
}

func newEnv(t *testing.T, opts ...testsupport.ConfigOption) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Sync.IncludeArtwork = false
	cfg.Sync.IncludeMetadata = false
	fake := testsupport.NewFakeJellyfin(t)
	return &env{
		cfg:    cfg,
		fake:   fake,
		client: fake.Client(),
		idx:    testsupport.MustOpenIndex(t, cfg),
	}
}

func (e *env) assemble() *syncer.Orchestrator {
	return syncer.Assemble(e.cfg, e.client, e.idx, nil, nil)
}

// custom wires an orchestrator around builder and exec; nil values fall back
// to the real components.
func (e *env) custom(builder syncer.ManifestBuilder, exec syncer.Executor) *syncer.Orchestrator {
	if builder == nil {
		builder = manifest.NewBuilder(e.client, manifest.Options{Subtitles: true}, nil)
	}
	if exec == nil {
		exec = e.executor()
	}
	return syncer.New(resolver.New(e.client, e.client.Name(), nil), builder, e.idx, exec, syncer.Options{
		Root:   e.cfg.Paths.MediaDir,
		Policy: syncer.PolicyFromConfig(e.cfg),
	})
}

func (e *env) executor() *transfer.Executor {
	return transfer.NewExecutor(e.client, e.idx, transfer.Options{
		Root:            e.cfg.Paths.MediaDir,
		CheckpointBytes: e.cfg.Sync.CheckpointBytes,
	})
}

func (e *env) records(t *testing.T) []state.Record {
	t.Helper()
	records, err := e.idx.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return records
}

func (e *env) mediaPath(rel string) string {
	return filepath.Join(e.cfg.Paths.MediaDir, filepath.FromSlash(rel))
}

type builderFunc func(ctx context.Context, ref manifest.RemoteItemRef) ([]manifest.FileDescriptor, error)

func (f builderFunc) Build(ctx context.Context, ref manifest.RemoteItemRef) ([]manifest.FileDescriptor, error) {
	return f(ctx, ref)
}

type executorFunc func(ctx context.Context, step planner.Step) transfer.Outcome

func (f executorFunc) Execute(ctx context.Context, step planner.Step) transfer.Outcome {
	return f(ctx, step)
}

func fileByKey(t *testing.T, files []syncer.FileResult, key string) syncer.FileResult {
	t.Helper()
	for _, f := range files {
		if f.File.Key == key {
			return f
		}
	}
	t.Fatalf("no result for %s in %+v", key, files)
	return syncer.FileResult{}
}

func TestSyncFreshMovieWithSubtitle(t *testing.T) {
	e := newEnv(t)
	media := testsupport.Pattern(mediaSize, 1)
	subtitle := testsupport.Pattern(2048, 2)
	e.fake.AddMovie(movieID, "Heat", 1995, media)
	e.fake.AddSubtitle(movieID, 3, "eng", "subrip", subtitle)
	orch := e.assemble()
	id := hashid.MustEncode(movieID)

	plans, err := orch.PlanOnly(context.Background(), id)
	if err != nil {
		t.Fatalf("PlanOnly: %v", err)
	}
	if len(plans) != 1 || plans[0].Err != nil {
		t.Fatalf("unexpected plans: %+v", plans)
	}
	for _, step := range plans[0].Plan.Steps {
		if step.Action != planner.ActionFetchFull {
			t.Fatalf("fresh store should fetch everything, got %s for %s", step.Action, step.File.Key)
		}
	}

	report, err := orch.Sync(context.Background(), id)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Status != syncer.StatusSuccess {
		t.Fatalf("status = %s, want success: %+v", report.Status, report)
	}
	files := report.Results[0].Files
	if len(files) != 2 {
		t.Fatalf("expected media and subtitle, got %d files", len(files))
	}
	if got := report.Counts()[syncer.OutcomeFetched]; got != 2 {
		t.Fatalf("fetched = %d, want 2", got)
	}
	if report.Transferred() != mediaSize+2048 {
		t.Fatalf("transferred = %d", report.Transferred())
	}

	mediaFile := fileByKey(t, files, manifest.KeyMedia)
	if got := testsupport.ReadFile(t, e.mediaPath(mediaFile.File.RelPath)); !bytes.Equal(got, media) {
		t.Fatal("media content differs from remote")
	}
	subFile := fileByKey(t, files, manifest.SubtitleKey(3))
	if got := testsupport.ReadFile(t, e.mediaPath(subFile.File.RelPath)); !bytes.Equal(got, subtitle) {
		t.Fatal("subtitle content differs from remote")
	}
	for _, rec := range e.records(t) {
		if rec.State != state.StateComplete || rec.Checksum == "" {
			t.Fatalf("record not complete: %+v", rec)
		}
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.cfg.Sync.IncludeArtwork = true
	e.cfg.Sync.IncludeMetadata = true
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(mediaSize, 1))
	e.fake.AddSubtitle(movieID, 3, "eng", "subrip", testsupport.Pattern(2048, 2))
	e.fake.AddImage(movieID, "Primary", "poster-1", testsupport.Pattern(512, 3))
	orch := e.assemble()
	id := hashid.MustEncode(movieID)

	first, err := orch.Sync(context.Background(), id)
	if err != nil || first.Status != syncer.StatusSuccess {
		t.Fatalf("first sync: %+v %v", first, err)
	}
	before := e.records(t)
	downloads := e.fake.Requests("/Items/" + movieID + "/Download")

	second, err := orch.Sync(context.Background(), id)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Status != syncer.StatusSuccess {
		t.Fatalf("second status = %s", second.Status)
	}
	files := second.Results[0].Files
	if got := second.Counts()[syncer.OutcomeSkipped]; got != len(files) || len(files) != 4 {
		t.Fatalf("expected all 4 files skipped, got %d of %d", got, len(files))
	}
	if second.Transferred() != 0 {
		t.Fatalf("second run transferred %d bytes", second.Transferred())
	}
	if e.fake.Requests("/Items/"+movieID+"/Download") != downloads {
		t.Fatal("second run downloaded media again")
	}
	if after := e.records(t); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed on a no-op run:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSyncResumesInterruptedSubtitle(t *testing.T) {
	e := newEnv(t)
	e.cfg.Sync.MaxAttempts = 1
	media := testsupport.Pattern(mediaSize, 1)
	subtitle := testsupport.Pattern(2048, 2)
	e.fake.AddMovie(movieID, "Heat", 1995, media)
	e.fake.AddSubtitle(movieID, 3, "eng", "subrip", subtitle)
	id := hashid.MustEncode(movieID)
	subPath := "/Videos/" + movieID + "/" + movieID + "/Subtitles/3/Stream.srt"

	// Subtitle sizes are not advertised by the server; this builder pins
	// them so the partial file is resumable.
	builder := builderFunc(func(_ context.Context, ref manifest.RemoteItemRef) ([]manifest.FileDescriptor, error) {
		return []manifest.FileDescriptor{
			{
				ItemHashID: ref.HashID, Role: manifest.RoleMedia, Key: manifest.KeyMedia,
				URL: e.client.DownloadURL(movieID), Size: mediaSize,
				RelPath: "Movies/Heat (1995)/Heat (1995).mkv",
			},
			{
				ItemHashID: ref.HashID, Role: manifest.RoleSubtitle, Key: manifest.SubtitleKey(3),
				URL: e.client.SubtitleURL(movieID, movieID, 3, "srt"), Size: 2048,
				RelPath: "Movies/Heat (1995)/Heat (1995).eng.srt",
			},
		}, nil
	})
	orch := e.custom(builder, nil)

	e.fake.InterruptAfter(subPath, 1024, 1)
	first, err := orch.Sync(context.Background(), id)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Status != syncer.StatusPartial {
		t.Fatalf("status = %s, want partial", first.Status)
	}
	if f := fileByKey(t, first.Results[0].Files, manifest.SubtitleKey(3)); f.Outcome != syncer.OutcomeFailed {
		t.Fatalf("subtitle outcome = %s", f.Outcome)
	}
	rec, err := e.idx.Lookup(context.Background(), id, manifest.SubtitleKey(3))
	if err != nil || rec == nil {
		t.Fatalf("Lookup: %v %v", rec, err)
	}
	if rec.State != state.StatePartial || rec.BytesWritten <= 0 || rec.BytesWritten >= 2048 {
		t.Fatalf("unexpected partial record: %+v", rec)
	}

	plans, err := orch.PlanOnly(context.Background(), id)
	if err != nil {
		t.Fatalf("PlanOnly: %v", err)
	}
	steps := plans[0].Plan.Steps
	if steps[0].Action != planner.ActionSkip || steps[1].Action != planner.ActionFetchResume {
		t.Fatalf("plan = [%s %s], want [skip fetch-resume]", steps[0].Action, steps[1].Action)
	}
	if steps[1].Offset != rec.BytesWritten {
		t.Fatalf("resume offset %d, want %d", steps[1].Offset, rec.BytesWritten)
	}

	second, err := orch.Sync(context.Background(), id)
	if err != nil || second.Status != syncer.StatusSuccess {
		t.Fatalf("second sync: %+v %v", second, err)
	}
	sub := fileByKey(t, second.Results[0].Files, manifest.SubtitleKey(3))
	if sub.Outcome != syncer.OutcomeResumed {
		t.Fatalf("subtitle outcome = %s, want resumed", sub.Outcome)
	}
	if sub.Transferred != 2048-rec.BytesWritten {
		t.Fatalf("transferred %d bytes on resume", sub.Transferred)
	}
	if got := testsupport.ReadFile(t, e.mediaPath(sub.File.RelPath)); !bytes.Equal(got, subtitle) {
		t.Fatal("resumed subtitle differs from remote")
	}
	if whole, _, _ := transfer.FileChecksum(e.mediaPath(sub.File.RelPath)); whole != sub.Checksum {
		t.Fatalf("recorded checksum %s, file hashes to %s", sub.Checksum, whole)
	}
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	e := newEnv(t)
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(mediaSize, 1))
	e.fake.FailNext("/Items/"+movieID+"/Download", 503, 2)

	report, err := e.assemble().Sync(context.Background(), hashid.MustEncode(movieID))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Status != syncer.StatusSuccess {
		t.Fatalf("status = %s", report.Status)
	}
	media := fileByKey(t, report.Results[0].Files, manifest.KeyMedia)
	if media.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", media.Attempts)
	}
}

func TestSyncGivesUpAfterMaxAttempts(t *testing.T) {
	e := newEnv(t)
	e.cfg.Sync.MaxAttempts = 2
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(mediaSize, 1))
	e.fake.FailNext("/Items/"+movieID+"/Download", 503, 5)

	report, err := e.assemble().Sync(context.Background(), hashid.MustEncode(movieID))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Status != syncer.StatusFailed {
		t.Fatalf("status = %s, want failed", report.Status)
	}
	media := fileByKey(t, report.Results[0].Files, manifest.KeyMedia)
	if media.Attempts != 2 || media.Reason != services.ReasonRemoteUnavailable {
		t.Fatalf("unexpected result: attempts=%d reason=%s", media.Attempts, media.Reason)
	}
}

func TestSyncRemovedItemIsNotFound(t *testing.T) {
	e := newEnv(t)
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(1024, 1))
	e.fake.Remove(movieID)

	report, err := e.assemble().Sync(context.Background(), hashid.MustEncode(movieID))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if report.Status != syncer.StatusFailed || len(report.Results) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if records := e.records(t); len(records) != 0 {
		t.Fatalf("state index touched: %+v", records)
	}
}

func TestSyncRejectsInvalidIdentifier(t *testing.T) {
	e := newEnv(t)
	_, err := e.assemble().Sync(context.Background(), "not-an-id!")
	if services.Reason(err) != services.ReasonInvalidIdentifier {
		t.Fatalf("expected invalid identifier, got %v", err)
	}
	if e.fake.Requests("/Users/"+testsupport.FakeUserID+"/Items/"+movieID) != 0 {
		t.Fatal("invalid identifier reached the server")
	}
}

func TestSyncTitleReturnsCandidates(t *testing.T) {
	e := newEnv(t)
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(1024, 1))

	report, err := e.assemble().Sync(context.Background(), "heat")
	var unresolved *syncer.UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected unresolved title, got %v", err)
	}
	if len(unresolved.Candidates) != 1 || unresolved.Candidates[0].HashID != hashid.MustEncode(movieID) {
		t.Fatalf("unexpected candidates: %+v", unresolved.Candidates)
	}
	if services.Reason(err) != services.ReasonInvalidIdentifier {
		t.Fatalf("reason = %s", services.Reason(err))
	}
	if len(report.Results) != 0 || e.fake.Requests("/Items/"+movieID+"/Download") != 0 {
		t.Fatal("a title must not start a download")
	}
}

func TestSyncRenamedItemRefetchesToNewPath(t *testing.T) {
	e := newEnv(t)
	media := testsupport.Pattern(mediaSize, 1)
	e.fake.AddMovie(movieID, "Heat", 1995, media)
	orch := e.assemble()
	id := hashid.MustEncode(movieID)

	first, err := orch.Sync(context.Background(), id)
	if err != nil || first.Status != syncer.StatusSuccess {
		t.Fatalf("first sync: %+v %v", first, err)
	}
	oldPath := fileByKey(t, first.Results[0].Files, manifest.KeyMedia).File.RelPath

	e.fake.Rename(movieID, "Heat Directors Cut")
	second, err := orch.Sync(context.Background(), id)
	if err != nil || second.Status != syncer.StatusSuccess {
		t.Fatalf("second sync: %+v %v", second, err)
	}
	got := fileByKey(t, second.Results[0].Files, manifest.KeyMedia)
	if got.Outcome != syncer.OutcomeFetched {
		t.Fatalf("outcome = %s, want fetched", got.Outcome)
	}
	want := "Movies/Heat Directors Cut (1995)/Heat Directors Cut (1995).mkv"
	if got.File.RelPath != want {
		t.Fatalf("path = %s, want %s", got.File.RelPath, want)
	}
	if data := testsupport.ReadFile(t, e.mediaPath(want)); !bytes.Equal(data, media) {
		t.Fatal("renamed media differs from remote")
	}
	if !fileExists(e.mediaPath(oldPath)) {
		t.Fatal("old file was removed")
	}

	third, err := orch.Sync(context.Background(), id)
	if err != nil || third.Counts()[syncer.OutcomeSkipped] != 1 {
		t.Fatalf("third sync: %+v %v", third, err)
	}
}

func TestSyncSameTitleItemsKeepSeparateFiles(t *testing.T) {
	const otherID = "fedcba9876543210fedcba9876543210"
	e := newEnv(t)
	first := testsupport.Pattern(mediaSize, 1)
	second := testsupport.Pattern(mediaSize, 2)
	e.fake.AddMovie(movieID, "Hamlet", 1990, first)
	e.fake.AddMovie(otherID, "Hamlet", 1990, second)
	orch := e.assemble()
	firstID, secondID := hashid.MustEncode(movieID), hashid.MustEncode(otherID)

	if report, err := orch.Sync(context.Background(), firstID); err != nil || report.Status != syncer.StatusSuccess {
		t.Fatalf("sync %s: %+v %v", firstID, report, err)
	}
	report, err := orch.Sync(context.Background(), secondID)
	if err != nil || report.Status != syncer.StatusSuccess {
		t.Fatalf("sync %s: %+v %v", secondID, report, err)
	}
	tagged := fileByKey(t, report.Results[0].Files, manifest.KeyMedia).File.RelPath
	if want := "Movies/Hamlet (1990)/Hamlet (1990) [" + secondID + "].mkv"; tagged != want {
		t.Fatalf("second item path = %s, want %s", tagged, want)
	}
	if data := testsupport.ReadFile(t, e.mediaPath(tagged)); !bytes.Equal(data, second) {
		t.Fatal("second item content differs from remote")
	}
	if data := testsupport.ReadFile(t, e.mediaPath("Movies/Hamlet (1990)/Hamlet (1990).mkv")); !bytes.Equal(data, first) {
		t.Fatal("first item file was overwritten")
	}

	for _, id := range []string{firstID, secondID} {
		again, err := orch.Sync(context.Background(), id)
		if err != nil || again.Counts()[syncer.OutcomeSkipped] != 1 {
			t.Fatalf("rerun %s: %+v %v", id, again, err)
		}
	}
}

func TestSyncAuthFailureIsReported(t *testing.T) {
	e := newEnv(t)
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(1024, 1))
	e.fake.SetToken("rotated")

	_, err := e.assemble().Sync(context.Background(), hashid.MustEncode(movieID))
	if services.Reason(err) != services.ReasonAuth {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestSyncRefetchesOnceAfterChecksumMismatch(t *testing.T) {
	e := newEnv(t)
	original := testsupport.Pattern(mediaSize, 1)
	replaced := testsupport.Pattern(mediaSize+4096, 9)
	e.fake.AddMovie(movieID, "Heat", 1995, original)

	inner := manifest.NewBuilder(e.client, manifest.Options{}, nil)
	var once sync.Once
	builder := builderFunc(func(ctx context.Context, ref manifest.RemoteItemRef) ([]manifest.FileDescriptor, error) {
		files, err := inner.Build(ctx, ref)
		// The server re-encodes the file between planning and transfer.
		once.Do(func() { e.fake.SetContent(movieID, replaced) })
		return files, err
	})

	report, err := e.custom(builder, nil).Sync(context.Background(), hashid.MustEncode(movieID))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	media := fileByKey(t, report.Results[0].Files, manifest.KeyMedia)
	if media.Outcome != syncer.OutcomeFetched || media.Attempts != 2 {
		t.Fatalf("unexpected result: outcome=%s attempts=%d err=%v", media.Outcome, media.Attempts, media.Err)
	}
	if media.Size != int64(len(replaced)) {
		t.Fatalf("size = %d, want %d", media.Size, len(replaced))
	}
	if got := testsupport.ReadFile(t, e.mediaPath(media.File.RelPath)); !bytes.Equal(got, replaced) {
		t.Fatal("final file is not the re-encoded content")
	}
}

func TestSyncPersistentChecksumMismatchFails(t *testing.T) {
	e := newEnv(t)
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(8192, 1))

	inner := manifest.NewBuilder(e.client, manifest.Options{}, nil)
	builder := builderFunc(func(ctx context.Context, ref manifest.RemoteItemRef) ([]manifest.FileDescriptor, error) {
		files, err := inner.Build(ctx, ref)
		for i := range files {
			files[i].Checksum = transfer.FormatChecksum(0)
		}
		return files, err
	})

	id := hashid.MustEncode(movieID)
	report, err := e.custom(builder, nil).Sync(context.Background(), id)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Status != syncer.StatusFailed {
		t.Fatalf("status = %s, want failed", report.Status)
	}
	media := fileByKey(t, report.Results[0].Files, manifest.KeyMedia)
	if media.Attempts != 2 || media.Reason != services.ReasonChecksumMismatch {
		t.Fatalf("unexpected result: attempts=%d reason=%s", media.Attempts, media.Reason)
	}
	rec, err := e.idx.Lookup(context.Background(), id, manifest.KeyMedia)
	if err != nil || rec == nil || rec.State != state.StateFailed {
		t.Fatalf("expected failed record, got %+v %v", rec, err)
	}
	if fileExists(e.mediaPath(media.File.RelPath)) {
		t.Fatal("unverified content was moved into place")
	}
}

func TestSyncCancellationStopsScheduling(t *testing.T) {
	e := newEnv(t, testsupport.WithConcurrency(1))
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(mediaSize, 1))
	e.fake.AddSubtitle(movieID, 3, "eng", "subrip", testsupport.Pattern(2048, 2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := e.executor()
	exec := executorFunc(func(ctx context.Context, step planner.Step) transfer.Outcome {
		out := inner.Execute(ctx, step)
		cancel()
		return out
	})

	id := hashid.MustEncode(movieID)
	report, err := e.custom(nil, exec).Sync(ctx, id)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Status != syncer.StatusPartial {
		t.Fatalf("status = %s, want partial", report.Status)
	}
	files := report.Results[0].Files
	if files[0].Outcome != syncer.OutcomeFetched {
		t.Fatalf("first file outcome = %s", files[0].Outcome)
	}
	if files[1].Outcome != syncer.OutcomeFailed || files[1].Reason != services.ReasonCanceled {
		t.Fatalf("second file: outcome=%s reason=%s", files[1].Outcome, files[1].Reason)
	}
	rec, err := e.idx.Lookup(context.Background(), id, files[1].File.Key)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec != nil {
		t.Fatalf("canceled file left a record: %+v", rec)
	}
}

func TestSyncSeriesIsolatesEpisodeFailures(t *testing.T) {
	e := newEnv(t)
	e.fake.AddSeries(seriesID, "The Wire")
	e.fake.AddSeason(seasonID, seriesID, 1)
	e.fake.AddEpisode(episode1, seriesID, seasonID, 1, 1, "The Target", testsupport.Pattern(4096, 1))
	e.fake.AddEpisode(episode2, seriesID, seasonID, 1, 2, "The Detail", testsupport.Pattern(4096, 2))
	e.fake.FailNext("/Items/"+episode2+"/Download", 404, 10)

	report, err := e.assemble().Sync(context.Background(), hashid.MustEncode(seriesID))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(report.Results))
	}
	if report.Status != syncer.StatusPartial {
		t.Fatalf("status = %s, want partial", report.Status)
	}
	if report.Results[0].Status != syncer.StatusSuccess {
		t.Fatalf("first episode status = %s", report.Results[0].Status)
	}
	failed := report.Results[1]
	if failed.Status != syncer.StatusFailed || failed.Reason != services.ReasonNotFound {
		t.Fatalf("second episode: status=%s reason=%s", failed.Status, failed.Reason)
	}
	if attempts := failed.Files[0].Attempts; attempts != 1 {
		t.Fatalf("not found must not be retried, attempts = %d", attempts)
	}
}

func TestPlanOnlyLeavesStateUntouched(t *testing.T) {
	e := newEnv(t)
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(mediaSize, 1))

	plans, err := e.assemble().PlanOnly(context.Background(), hashid.MustEncode(movieID))
	if err != nil {
		t.Fatalf("PlanOnly: %v", err)
	}
	if len(plans) != 1 || len(plans[0].Plan.Steps) != 1 {
		t.Fatalf("unexpected plans: %+v", plans)
	}
	if plans[0].Plan.RemainingBytes() != mediaSize {
		t.Fatalf("remaining = %d", plans[0].Plan.RemainingBytes())
	}
	if e.fake.Requests("/Items/"+movieID+"/Download") != 0 {
		t.Fatal("dry run downloaded content")
	}
	if records := e.records(t); len(records) != 0 {
		t.Fatalf("dry run wrote state: %+v", records)
	}
}

func TestSyncRespectsConcurrencyLimit(t *testing.T) {
	e := newEnv(t, testsupport.WithConcurrency(2))
	e.fake.AddMovie(movieID, "Heat", 1995, testsupport.Pattern(1024, 1))

	builder := builderFunc(func(_ context.Context, ref manifest.RemoteItemRef) ([]manifest.FileDescriptor, error) {
		files := make([]manifest.FileDescriptor, 6)
		for i := range files {
			files[i] = manifest.FileDescriptor{
				ItemHashID: ref.HashID, Role: manifest.RoleSubtitle, Key: manifest.SubtitleKey(i),
				Size: 10, RelPath: "Movies/Heat/" + manifest.SubtitleKey(i),
			}
		}
		return files, nil
	})

	var inFlight, peak atomic.Int32
	exec := executorFunc(func(_ context.Context, step planner.Step) transfer.Outcome {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return transfer.Outcome{File: step.File, Action: step.Action, Size: step.File.Size, Transferred: step.File.Size}
	})

	report, err := e.custom(builder, exec).Sync(context.Background(), hashid.MustEncode(movieID))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Status != syncer.StatusSuccess || len(report.Results[0].Files) != 6 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", got)
	}
	for i, f := range report.Results[0].Files {
		if f.File.Key != manifest.SubtitleKey(i) {
			t.Fatalf("results out of plan order at %d: %s", i, f.File.Key)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
