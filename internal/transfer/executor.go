package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"jellysync/internal/logging"
	"jellysync/internal/manifest"
	"jellysync/internal/planner"
	"jellysync/internal/services"
	"jellysync/internal/services/jellyfin"
	"jellysync/internal/state"
)

const (
	stage             = "transfer"
	defaultCheckpoint = 8 << 20
	copyBufferSize    = 256 << 10
)

// Opener starts a content stream at offset.
type Opener interface {
	Open(ctx context.Context, rawURL string, offset int64) (*jellyfin.Stream, error)
}

// Ledger hands out write transactions for manifest files.
type Ledger interface {
	Begin(ctx context.Context, fd manifest.FileDescriptor) (*state.Txn, error)
}

// Progress is reported while a file streams.
type Progress struct {
	File    manifest.FileDescriptor
	Written int64
	// Total is the expected final size, or -1 when unknown.
	Total int64
}

// ProgressFunc receives progress updates. It is called from transfer
// goroutines and must be safe for concurrent use.
type ProgressFunc func(Progress)

// Options configures an Executor.
type Options struct {
	// Root is the media directory final paths are relative to.
	Root            string
	CheckpointBytes int64
	Limiter         *rate.Limiter
	Progress        ProgressFunc
	Logger          *slog.Logger
}

// Outcome is the result of executing one plan step.
type Outcome struct {
	File     manifest.FileDescriptor
	Action   planner.Action
	Path     string
	Checksum string
	// Size is the final file size when the transfer completed.
	Size int64
	// Transferred counts the bytes received during this execution.
	Transferred int64
	Resumed     bool
	Restarted   bool
	Duration    time.Duration
	Err         error
}

// Executor carries out plan steps.
type Executor struct {
	opener Opener
	ledger Ledger
	opts   Options
	logger *slog.Logger
}

// NewExecutor builds an executor writing below opts.Root.
func NewExecutor(opener Opener, ledger Ledger, opts Options) *Executor {
	if opts.CheckpointBytes <= 0 {
		opts.CheckpointBytes = defaultCheckpoint
	}
	return &Executor{
		opener: opener,
		ledger: ledger,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "transfer"),
	}
}

// Execute runs one step. Skip steps return immediately. Any failure after the
// transaction began aborts it, leaving the durable prefix for a later resume.
func (e *Executor) Execute(ctx context.Context, step planner.Step) Outcome {
	started := time.Now()
	fd := step.File
	out := Outcome{File: fd, Action: step.Action, Path: e.finalPath(fd)}
	if step.Action == planner.ActionSkip {
		return out
	}

	ctx = services.WithFile(services.WithStage(ctx, stage), fd.Key)
	logger := logging.WithContext(ctx, e.logger)

	txn, err := e.ledger.Begin(ctx, fd)
	if err != nil {
		out.Err = err
		if !errors.Is(err, services.ErrPathConflict) {
			out.Err = services.Wrap(services.ErrTransferFailed, stage, "begin", "open state transaction", err)
		}
		out.Duration = time.Since(started)
		return out
	}

	if err := e.run(ctx, txn, step, &out, logger); err != nil {
		if abortErr := txn.Abort(ctx, err); abortErr != nil {
			logger.Error("state abort failed", logging.Error(abortErr))
		}
		out.Err = err
	}
	out.Duration = time.Since(started)
	return out
}

func (e *Executor) run(ctx context.Context, txn *state.Txn, step planner.Step, out *Outcome, logger *slog.Logger) error {
	fd := step.File
	staging := txn.StagingPath()

	offset := txn.Offset()
	digest := xxhash.New()
	if offset > 0 && step.Action == planner.ActionFetchResume {
		restored, err := restorePrefix(staging, offset, txn.Prefix())
		if err != nil {
			logging.WarnWithContext(logger, "staged prefix failed verification",
				"transfer_prefix_mismatch",
				logging.Int64("offset", offset),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file will be downloaded from the start"),
			)
			offset = 0
		} else {
			digest = restored
		}
	} else {
		offset = 0
	}
	if offset == 0 && txn.Offset() > 0 {
		if err := txn.Restart(ctx); err != nil {
			return services.Wrap(services.ErrTransferFailed, stage, "restart", "reset staged progress", err)
		}
	}

	stream, err := e.opener.Open(ctx, fd.URL, offset)
	if err != nil {
		return err
	}
	defer stream.Body.Close()

	if stream.Offset != offset {
		logger.Info("server ignored range request, restarting transfer",
			logging.String(logging.FieldEventType, "transfer_range_unsupported"),
			logging.Int64("offset", offset),
		)
		if err := txn.Restart(ctx); err != nil {
			return services.Wrap(services.ErrTransferFailed, stage, "restart", "reset staged progress", err)
		}
		offset = 0
		digest.Reset()
		out.Restarted = true
	}
	out.Resumed = offset > 0

	total := expectedTotal(fd, stream)
	if out.Resumed {
		logger.Info("resuming transfer",
			logging.String(logging.FieldEventType, "transfer_resume"),
			logging.Int64("offset_bytes", offset),
			logging.Int64(logging.FieldSize, total),
		)
	} else {
		logger.Debug("starting transfer", logging.Int64(logging.FieldSize, total))
	}

	file, err := openStaging(staging, offset)
	if err != nil {
		return services.Wrap(services.ErrTransferFailed, stage, "open staging", staging, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = file.Close()
		}
	}()

	written, err := e.copy(ctx, file, stream.Body, digest, txn, fd, offset, total, logger)
	out.Transferred = written - offset
	if err != nil {
		return err
	}

	if total >= 0 && written != total {
		return services.Wrap(services.ErrChecksumMismatch, stage, "verify",
			fmt.Sprintf("received %d bytes, expected %d", written, total), nil)
	}
	checksum := FormatChecksum(digest.Sum64())
	if fd.Checksum != "" && fd.Checksum != checksum {
		return services.Wrap(services.ErrChecksumMismatch, stage, "verify",
			fmt.Sprintf("checksum %s, expected %s", checksum, fd.Checksum), nil)
	}

	if err := file.Sync(); err != nil {
		return services.Wrap(services.ErrTransferFailed, stage, "sync", staging, err)
	}
	closed = true
	if err := file.Close(); err != nil {
		return services.Wrap(services.ErrTransferFailed, stage, "close", staging, err)
	}

	if err := moveIntoPlace(staging, out.Path); err != nil {
		return services.Wrap(services.ErrTransferFailed, stage, "finalize", out.Path, err)
	}
	if err := txn.Commit(ctx, checksum, written); err != nil {
		return services.Wrap(services.ErrTransferFailed, stage, "commit", "record completed file", err)
	}

	out.Checksum = checksum
	out.Size = written
	logger.Info("file complete",
		logging.String(logging.FieldEventType, "transfer_complete"),
		logging.String("path", fd.RelPath),
		logging.Int64(logging.FieldSize, written),
		logging.Bool("resumed", out.Resumed),
	)
	return nil
}

// copy streams body into file from offset, checkpointing as it goes. On a
// read or write failure the bytes already written are flushed and recorded
// before the error is returned.
func (e *Executor) copy(ctx context.Context, file *os.File, body io.Reader, digest *xxhash.Digest, txn *state.Txn, fd manifest.FileDescriptor, offset, total int64, logger *slog.Logger) (int64, error) {
	reader := limitReader(ctx, body, e.opts.Limiter)
	sampler := logging.NewProgressSampler(10)
	buf := make([]byte, copyBufferSize)
	written := offset
	durable := offset
	var sinceCheckpoint int64

	checkpoint := func() error {
		if written == durable {
			return nil
		}
		if err := file.Sync(); err != nil {
			return err
		}
		prefix, err := digest.MarshalBinary()
		if err != nil {
			return err
		}
		if err := txn.Checkpoint(ctx, written, prefix); err != nil {
			return err
		}
		durable = written
		sinceCheckpoint = 0
		return nil
	}
	fail := func(op string, cause error) error {
		if cpErr := checkpoint(); cpErr != nil {
			logger.Warn("could not record progress before failing",
				logging.Error(cpErr),
				logging.String(logging.FieldEventType, "transfer_checkpoint_failed"),
				logging.String(logging.FieldImpact, "resume will restart from the previous checkpoint"),
				logging.String(logging.FieldErrorHint, "check free space in the state directory"),
			)
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(cause, ctxErr) {
			cause = fmt.Errorf("%w: %w", ctxErr, cause)
		}
		return services.Wrap(services.ErrTransferFailed, stage, op,
			fmt.Sprintf("interrupted after %d bytes", written), cause)
	}

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return written, fail("write", err)
			}
			_, _ = digest.Write(buf[:n])
			written += int64(n)
			sinceCheckpoint += int64(n)
			e.report(fd, written, total)
			if total > 0 && sampler.ShouldLog(float64(written)*100/float64(total), fd.Key) {
				logger.Debug("transfer progress",
					logging.Int64("written_bytes", written),
					logging.Int64(logging.FieldSize, total),
				)
			}
			if sinceCheckpoint >= e.opts.CheckpointBytes {
				if err := checkpoint(); err != nil {
					return written, services.Wrap(services.ErrTransferFailed, stage, "checkpoint", "record progress", err)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fail("stream", readErr)
		}
	}
}

func (e *Executor) report(fd manifest.FileDescriptor, written, total int64) {
	if e.opts.Progress == nil {
		return
	}
	e.opts.Progress(Progress{File: fd, Written: written, Total: total})
}

func (e *Executor) finalPath(fd manifest.FileDescriptor) string {
	return filepath.Join(e.opts.Root, filepath.FromSlash(fd.RelPath))
}

func expectedTotal(fd manifest.FileDescriptor, stream *jellyfin.Stream) int64 {
	if fd.SizeKnown() {
		return fd.Size
	}
	if stream.Total > 0 {
		return stream.Total
	}
	if stream.Length >= 0 && stream.Offset == 0 {
		return stream.Length
	}
	return -1
}

func openStaging(path string, offset int64) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	flags := os.O_CREATE | os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(offset); err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}
