package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNotFound          = errors.New("not found")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrAuth              = errors.New("authentication failed")
	ErrEmptyManifest     = errors.New("empty manifest")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrConfiguration     = errors.New("configuration error")
	// ErrPathConflict marks a local path already recorded for another item.
	ErrPathConflict = errors.New("local path conflict")
)

// Reason codes reported per file and per item. They are stable strings that
// automation can match on.
const (
	ReasonCanceled          = "canceled"
	ReasonInvalidIdentifier = "invalid_identifier"
	ReasonNotFound          = "not_found"
	ReasonAuth              = "auth"
	ReasonRemoteUnavailable = "remote_unavailable"
	ReasonEmptyManifest     = "empty_manifest"
	ReasonChecksumMismatch  = "checksum_mismatch"
	ReasonTransferFailed    = "transfer_failed"
	ReasonConfiguration     = "configuration"
	ReasonPathConflict      = "path_conflict"
	ReasonError             = "error"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransferFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// WrapAuth tags err as both a remote-unavailable and an authentication failure.
func WrapAuth(stage, operation, message string, err error) error {
	return fmt.Errorf("%w: %w", ErrAuth, Wrap(ErrRemoteUnavailable, stage, operation, message, err))
}

// Reason maps an error to its stable reason code. Auth is checked before the
// generic remote-unavailable marker so credential problems stay distinguishable.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, ErrInvalidIdentifier):
		return ReasonInvalidIdentifier
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrAuth):
		return ReasonAuth
	case errors.Is(err, ErrRemoteUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ReasonRemoteUnavailable
	case errors.Is(err, ErrEmptyManifest):
		return ReasonEmptyManifest
	case errors.Is(err, ErrChecksumMismatch):
		return ReasonChecksumMismatch
	case errors.Is(err, ErrTransferFailed):
		return ReasonTransferFailed
	case errors.Is(err, ErrConfiguration):
		return ReasonConfiguration
	case errors.Is(err, ErrPathConflict):
		return ReasonPathConflict
	default:
		return ReasonError
	}
}

// Retryable reports whether a failure may succeed when attempted again.
// Cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrTransferFailed)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
