package conversation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Upstream completion-service failures, kept distinct from validation errors
// so callers can map them to back-off behavior instead of user guidance.
var (
	ErrRateLimited        = errors.New("conversation: upstream rate limited")
	ErrQuotaExhausted     = errors.New("conversation: upstream quota exhausted")
	ErrServiceUnavailable = errors.New("conversation: completion service unavailable")

	// ErrTruncatedStream means the upstream connection closed before the
	// end-of-stream sentinel arrived.
	ErrTruncatedStream = errors.New("conversation: stream truncated before completion")
)

const quotaErrorCode = "insufficient_quota"

// classifyUpstreamError folds provider-specific failures into the sentinel
// taxonomy above. Unrecognized errors pass through unchanged.
func classifyUpstreamError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == quotaErrorCode {
			return ErrQuotaExhausted
		}
		if apiErr.Type == quotaErrorCode {
			return ErrQuotaExhausted
		}
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return ErrRateLimited
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return ErrServiceUnavailable
		}
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusTooManyRequests:
			return ErrRateLimited
		case reqErr.HTTPStatusCode >= http.StatusInternalServerError:
			return ErrServiceUnavailable
		}
		return err
	}

	// A blown completion budget is an outage from the caller's point of
	// view. Plain cancellation (caller disconnect) passes through.
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrServiceUnavailable
	}

	// Transport-level failures (connection refused, DNS) read as outages.
	if strings.Contains(err.Error(), "connection refused") {
		return ErrServiceUnavailable
	}
	return err
}
