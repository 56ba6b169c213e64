package conversation

import (
	"context"
	"errors"

	"github.com/avaclinic/booking-assistant/internal/observability/metrics"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

// FallbackClient wraps a primary streaming backend with an optional fallback
// provider. If the primary fails, the same request is retried against the
// fallback. Caller cancellation is never retried.
type FallbackClient struct {
	primary  StreamingLLMClient
	fallback StreamingLLMClient
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewFallbackClient creates a fallback-enabled client. fallback may be nil,
// in which case only the primary is used.
func NewFallbackClient(primary, fallback StreamingLLMClient, logger *logging.Logger, m *metrics.BookingMetrics) *FallbackClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		metrics:  m,
	}
}

// Name reports the primary backend's name; metrics attribute fallback use
// separately per call.
func (c *FallbackClient) Name() string { return backendName(c.primary) }

func (c *FallbackClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		c.metrics.ObserveCompletion(backendName(c.primary), "ok")
		return resp, nil
	}
	c.metrics.ObserveCompletion(backendName(c.primary), "error")

	if !c.shouldFallback(ctx, err, req) {
		return LLMResponse{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.metrics.ObserveCompletion(backendName(c.fallback), "error")
		c.logger.Error("fallback completion also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		// The primary error carries the classification the caller acts on.
		return LLMResponse{}, err
	}
	c.metrics.ObserveCompletion(backendName(c.fallback), "ok")
	c.logger.Info("fallback completion succeeded after primary failure")
	return fallbackResp, nil
}

func (c *FallbackClient) CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error) {
	chunks, err := c.primary.CompleteStream(ctx, req)
	if err == nil {
		return chunks, nil
	}
	c.metrics.ObserveCompletion(backendName(c.primary), "error")

	if !c.shouldFallback(ctx, err, req) {
		return nil, err
	}
	fallbackChunks, fallbackErr := c.fallback.CompleteStream(ctx, req)
	if fallbackErr != nil {
		c.metrics.ObserveCompletion(backendName(c.fallback), "error")
		c.logger.Error("fallback stream also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return nil, err
	}
	c.logger.Info("fallback stream opened after primary failure")
	return fallbackChunks, nil
}

// shouldFallback decides whether the fallback gets a turn. Tool-bearing
// requests never fall back: the fallback backend has no tool protocol, so a
// degraded answer there would silently skip the booking machinery.
func (c *FallbackClient) shouldFallback(ctx context.Context, err error, req LLMRequest) bool {
	if c.fallback == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if len(req.Tools) > 0 {
		return false
	}
	c.logger.Warn("primary completion failed, attempting fallback", "error", err.Error())
	return true
}

type namedBackend interface {
	Name() string
}

func backendName(c LLMClient) string {
	if n, ok := c.(namedBackend); ok {
		return n.Name()
	}
	return "unknown"
}
