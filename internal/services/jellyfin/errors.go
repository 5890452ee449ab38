package jellyfin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"jellysync/internal/services"
)

// checkStatus converts a non-2xx response into a tagged error and drains a
// bounded amount of the body for the message.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return classifyStatus(op, resp.StatusCode, strings.TrimSpace(string(body)))
}

func classifyStatus(op string, status int, body string) error {
	msg := fmt.Sprintf("status %d", status)
	if body != "" {
		msg += ": " + body
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.WrapAuth("jellyfin", op, msg, nil)
	case status == http.StatusNotFound, status == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "jellyfin", op, msg, nil)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrRemoteUnavailable, "jellyfin", op, msg, nil)
	default:
		return fmt.Errorf("jellyfin: %s: unexpected %s", op, msg)
	}
}

// classifyTransportError tags network failures as remote-unavailable while
// keeping cancellation visible to errors.Is.
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("jellyfin: %s: %w", op, err)
	}
	return services.Wrap(services.ErrRemoteUnavailable, "jellyfin", op, "request failed", err)
}

func classifyDecode(op string, err error) error {
	return services.Wrap(services.ErrRemoteUnavailable, "jellyfin", op, "decode response", err)
}
