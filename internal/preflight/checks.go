package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"jellysync/internal/config"
	"jellysync/internal/services"
	"jellysync/internal/services/jellyfin"
	"jellysync/internal/state"
)

// Pinger is the part of the Jellyfin client the server check needs.
type Pinger interface {
	Ping(ctx context.Context) (*jellyfin.SystemInfo, error)
}

// CheckJellyfin verifies connectivity and authentication with one
// authenticated call. It uses a 5-second timeout and a single attempt.
func CheckJellyfin(ctx context.Context, server Pinger) Result {
	const name = "Jellyfin"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := server.Ping(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeServerError(err)}
	}
	detail := "Reachable"
	if info.ServerName != "" {
		detail = fmt.Sprintf("%s (version %s)", info.ServerName, info.Version)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace reports the space available below path. It only fails when
// the filesystem cannot be queried.
func CheckFreeSpace(name, path string) Result {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := uint64(fs.Bavail) * uint64(fs.Bsize)
	return Result{Name: name, Passed: true, Detail: humanize.IBytes(free) + " available"}
}

// CheckStateIndex opens the state index, which also applies and validates
// its schema.
func CheckStateIndex(ctx context.Context, cfg *config.Config) Result {
	const name = "State index"

	idx, err := state.Open(cfg)
	if err != nil {
		if errors.Is(err, state.ErrSchemaMismatch) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: written by a different jellysync version)", cfg.StatePath())}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.StatePath(), err)}
	}
	defer idx.Close()

	records, err := idx.List(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.StatePath(), err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d files tracked)", cfg.StatePath(), len(records))}
}

// summarizeServerError produces a human-readable summary for server check failures.
func summarizeServerError(err error) string {
	switch services.Reason(err) {
	case services.ReasonAuth:
		return "auth failed (check token and user id)"
	case services.ReasonRemoteUnavailable:
		if errors.Is(err, context.DeadlineExceeded) {
			return "check timed out (server unresponsive)"
		}
		return "unreachable: " + err.Error()
	default:
		return err.Error()
	}
}
