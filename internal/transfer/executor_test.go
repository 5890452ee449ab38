package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"

	"jellysync/internal/config"
	"jellysync/internal/hashid"
	"jellysync/internal/manifest"
	"jellysync/internal/planner"
	"jellysync/internal/services"
	"jellysync/internal/state"
	"jellysync/internal/testsupport"
	"jellysync/internal/transfer"
)

const movieID = "0123456789abcdef0123456789abcdef"

type harness struct {
	cfg  *config.Config
	fake *testsupport.FakeJellyfin
	idx  *state.Index
	exec *transfer.Executor
	fd   manifest.FileDescriptor
}

func newHarness(t *testing.T, content []byte, opts ...func(*transfer.Options)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithCheckpointBytes(1024))
	fake := testsupport.NewFakeJellyfin(t)
	fake.AddMovie(movieID, "Heat", 1995, content)
	client := fake.Client()
	idx := testsupport.MustOpenIndex(t, cfg)

	options := transfer.Options{Root: cfg.Paths.MediaDir, CheckpointBytes: cfg.Sync.CheckpointBytes}
	for _, opt := range opts {
		opt(&options)
	}
	return &harness{
		cfg:  cfg,
		fake: fake,
		idx:  idx,
		exec: transfer.NewExecutor(client, idx, options),
		fd: manifest.FileDescriptor{
			ItemHashID: hashid.MustEncode(movieID),
			Role:       manifest.RoleMedia,
			Key:        manifest.KeyMedia,
			URL:        client.DownloadURL(movieID),
			Size:       int64(len(content)),
			RelPath:    "Movies/Heat (1995)/Heat (1995).mkv",
		},
	}
}

func (h *harness) step(t *testing.T) planner.Step {
	t.Helper()
	snap, err := h.idx.Snapshot(context.Background(), h.fd.ItemHashID, h.cfg.Paths.MediaDir)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return planner.Build([]manifest.FileDescriptor{h.fd}, snap).Steps[0]
}

func (h *harness) record(t *testing.T) *state.Record {
	t.Helper()
	rec, err := h.idx.Lookup(context.Background(), h.fd.ItemHashID, h.fd.Key)
	if err != nil || rec == nil {
		t.Fatalf("Lookup: %v %v", rec, err)
	}
	return rec
}

func (h *harness) downloadPath() string { return "/Items/" + movieID + "/Download" }

func TestFullFetchCommitsVerifiedFile(t *testing.T) {
	content := testsupport.Pattern(5000, 1)
	h := newHarness(t, content)

	step := h.step(t)
	if step.Action != planner.ActionFetchFull {
		t.Fatalf("expected fetch-full, got %s", step.Action)
	}
	out := h.exec.Execute(context.Background(), step)
	if out.Err != nil {
		t.Fatalf("Execute: %v", out.Err)
	}
	if out.Size != 5000 || out.Transferred != 5000 || out.Resumed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	want := transfer.FormatChecksum(xxhash.Sum64(content))
	if out.Checksum != want {
		t.Fatalf("checksum = %s, want %s", out.Checksum, want)
	}
	if got := testsupport.ReadFile(t, out.Path); !bytes.Equal(got, content) {
		t.Fatal("final file differs from remote content")
	}

	rec := h.record(t)
	if rec.State != state.StateComplete || rec.Checksum != want || rec.Size != 5000 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := os.Stat(h.idx.StagingPath(h.fd.ItemHashID, h.fd.Key)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging file should be gone, got %v", err)
	}
	if next := h.step(t); next.Action != planner.ActionSkip {
		t.Fatalf("second plan should skip, got %s (%s)", next.Action, next.Reason)
	}
}

func TestResumeProducesIdenticalFile(t *testing.T) {
	content := testsupport.Pattern(5000, 9)
	for _, n := range []int64{1, 1000, 1024, 3000, 4999} {
		t.Run(fmt.Sprintf("interrupt_at_%d", n), func(t *testing.T) {
			h := newHarness(t, content)
			h.fake.InterruptAfter(h.downloadPath(), n, 1)

			out := h.exec.Execute(context.Background(), h.step(t))
			if !errors.Is(out.Err, services.ErrTransferFailed) || !services.Retryable(out.Err) {
				t.Fatalf("expected retryable transfer failure, got %v", out.Err)
			}
			rec := h.record(t)
			if rec.State != state.StatePartial || rec.BytesWritten <= 0 || rec.BytesWritten > n {
				t.Fatalf("interrupted record should be partial with up to %d bytes, got %+v", n, rec)
			}
			if _, err := os.Stat(out.Path); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("final path must not exist before commit, got %v", err)
			}

			step := h.step(t)
			if step.Action != planner.ActionFetchResume || step.Offset != rec.BytesWritten {
				t.Fatalf("expected resume at %d, got %s@%d (%s)", rec.BytesWritten, step.Action, step.Offset, step.Reason)
			}
			out = h.exec.Execute(context.Background(), step)
			if out.Err != nil {
				t.Fatalf("resume: %v", out.Err)
			}
			if !out.Resumed || out.Transferred != int64(len(content))-rec.BytesWritten {
				t.Fatalf("unexpected resume outcome: %+v", out)
			}
			if got := testsupport.ReadFile(t, out.Path); !bytes.Equal(got, content) {
				t.Fatal("resumed file differs from a full download")
			}
			ranges := h.fake.Ranges(h.downloadPath())
			if last := ranges[len(ranges)-1]; last != fmt.Sprintf("bytes=%d-", rec.BytesWritten) {
				t.Fatalf("unexpected range header %q", last)
			}
			if final := h.record(t); final.State != state.StateComplete || final.Checksum != transfer.FormatChecksum(xxhash.Sum64(content)) {
				t.Fatalf("unexpected final record: %+v", final)
			}
		})
	}
}

func TestResumeWithoutRangeSupportRestarts(t *testing.T) {
	content := testsupport.Pattern(4096, 3)
	h := newHarness(t, content)
	h.fake.InterruptAfter(h.downloadPath(), 2500, 1)
	if out := h.exec.Execute(context.Background(), h.step(t)); out.Err == nil {
		t.Fatal("expected interrupted transfer")
	}

	h.fake.SetRangeSupport(false)
	step := h.step(t)
	if step.Action != planner.ActionFetchResume {
		t.Fatalf("expected resume plan, got %s", step.Action)
	}
	out := h.exec.Execute(context.Background(), step)
	if out.Err != nil {
		t.Fatalf("Execute: %v", out.Err)
	}
	if !out.Restarted || out.Resumed || out.Transferred != 4096 {
		t.Fatalf("expected a restarted full transfer, got %+v", out)
	}
	if got := testsupport.ReadFile(t, out.Path); !bytes.Equal(got, content) {
		t.Fatal("restarted file differs from remote content")
	}
}

func TestCorruptedPrefixFallsBackToFullFetch(t *testing.T) {
	content := testsupport.Pattern(4096, 5)
	h := newHarness(t, content)
	h.fake.InterruptAfter(h.downloadPath(), 3000, 1)
	if out := h.exec.Execute(context.Background(), h.step(t)); out.Err == nil {
		t.Fatal("expected interrupted transfer")
	}

	staging := h.idx.StagingPath(h.fd.ItemHashID, h.fd.Key)
	data := testsupport.ReadFile(t, staging)
	data[0] ^= 0xff
	testsupport.WriteFile(t, staging, data)

	out := h.exec.Execute(context.Background(), h.step(t))
	if out.Err != nil {
		t.Fatalf("Execute: %v", out.Err)
	}
	if out.Resumed || out.Transferred != 4096 {
		t.Fatalf("corrupted prefix must not be resumed: %+v", out)
	}
	if got := testsupport.ReadFile(t, out.Path); !bytes.Equal(got, content) {
		t.Fatal("file differs after prefix fallback")
	}
	if ranges := h.fake.Ranges(h.downloadPath()); ranges[len(ranges)-1] != "" {
		t.Fatalf("fallback should not send a range, got %q", ranges[len(ranges)-1])
	}
}

func TestChecksumMismatchMarksFileFailed(t *testing.T) {
	content := testsupport.Pattern(2048, 2)
	h := newHarness(t, content)
	h.fd.Checksum = transfer.FormatChecksum(12345)

	out := h.exec.Execute(context.Background(), h.step(t))
	if !errors.Is(out.Err, services.ErrChecksumMismatch) || services.Retryable(out.Err) {
		t.Fatalf("expected terminal checksum mismatch, got %v", out.Err)
	}
	if rec := h.record(t); rec.State != state.StateFailed {
		t.Fatalf("expected failed record, got %+v", rec)
	}
	if _, err := os.Stat(out.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unverified bytes must not reach the media dir, got %v", err)
	}
}

func TestSizeMismatchIsVerificationFailure(t *testing.T) {
	content := testsupport.Pattern(2048, 2)
	h := newHarness(t, content)
	h.fd.Size = 4096

	out := h.exec.Execute(context.Background(), h.step(t))
	if !errors.Is(out.Err, services.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch for short body, got %v", out.Err)
	}
}

func TestFailureBeforeCommitNeverCompletes(t *testing.T) {
	content := testsupport.Pattern(3000, 4)
	h := newHarness(t, content)

	// A non-empty directory at the final path makes the move fail after all
	// bytes were staged and verified.
	final := filepath.Join(h.cfg.Paths.MediaDir, filepath.FromSlash(h.fd.RelPath))
	testsupport.WriteFile(t, filepath.Join(final, "blocker"), []byte("x"))

	out := h.exec.Execute(context.Background(), h.step(t))
	if !errors.Is(out.Err, services.ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", out.Err)
	}
	rec := h.record(t)
	if rec.State != state.StatePartial || rec.BytesWritten <= 0 || rec.BytesWritten > 3000 {
		t.Fatalf("expected partial record with durable count, got %+v", rec)
	}
	if rec.Checksum != "" {
		t.Fatalf("partial record must not carry a completion checksum: %+v", rec)
	}
}

func TestUnknownSizeUsesStreamLength(t *testing.T) {
	content := testsupport.Pattern(700, 6)
	h := newHarness(t, content)
	h.fd.Size = -1

	out := h.exec.Execute(context.Background(), h.step(t))
	if out.Err != nil {
		t.Fatalf("Execute: %v", out.Err)
	}
	if out.Size != 700 || h.record(t).Size != 700 {
		t.Fatalf("expected recorded size 700, got %+v", out)
	}
}

func TestProgressAndLimiter(t *testing.T) {
	content := testsupport.Pattern(8192, 8)
	var (
		mu      sync.Mutex
		updates []transfer.Progress
	)
	h := newHarness(t, content, func(o *transfer.Options) {
		o.Limiter = transfer.NewLimiter(64 << 20)
		o.Progress = func(p transfer.Progress) {
			mu.Lock()
			updates = append(updates, p)
			mu.Unlock()
		}
	})

	out := h.exec.Execute(context.Background(), h.step(t))
	if out.Err != nil {
		t.Fatalf("Execute: %v", out.Err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(updates) == 0 {
		t.Fatal("expected progress updates")
	}
	last := updates[len(updates)-1]
	if last.Written != 8192 || last.Total != 8192 || last.File.Key != manifest.KeyMedia {
		t.Fatalf("unexpected final progress: %+v", last)
	}
	if transfer.NewLimiter(0) != nil {
		t.Fatal("non-positive rate should disable limiting")
	}
}

func TestSkipDoesNothing(t *testing.T) {
	h := newHarness(t, testsupport.Pattern(10, 1))
	out := h.exec.Execute(context.Background(), planner.Step{File: h.fd, Action: planner.ActionSkip})
	if out.Err != nil || out.Transferred != 0 {
		t.Fatalf("unexpected skip outcome: %+v", out)
	}
	if h.fake.Requests(h.downloadPath()) != 0 {
		t.Fatal("skip must not contact the server")
	}
	if rec, _ := h.idx.Lookup(context.Background(), h.fd.ItemHashID, h.fd.Key); rec != nil {
		t.Fatalf("skip must not create a record: %+v", rec)
	}
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	testsupport.WriteFile(t, path, []byte("hello"))
	sum, n, err := transfer.FileChecksum(path)
	if err != nil {
		t.Fatalf("FileChecksum: %v", err)
	}
	if n != 5 || !strings.HasPrefix(sum, transfer.ChecksumPrefix) || sum != transfer.FormatChecksum(xxhash.Sum64String("hello")) {
		t.Fatalf("unexpected checksum %s (%d bytes)", sum, n)
	}
}
