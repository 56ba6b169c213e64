package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avaclinic/booking-assistant/internal/clinic"
	"github.com/avaclinic/booking-assistant/internal/observability/metrics"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

var orchestratorTracer = otel.Tracer("booking.internal.conversation.orchestrator")

// StreamSink receives the assistant's reply incrementally. A Delta error
// means the caller is gone; the orchestrator stops consuming upstream.
type StreamSink interface {
	Delta(text string) error
}

const (
	defaultCallTimeout = 45 * time.Second
	defaultMaxTokens   = 1024
)

// Orchestrator runs one dialogue turn: a buffered tool-dispatch pass against
// the completion service, tool execution, then a streamed final reply relayed
// to the caller.
type Orchestrator struct {
	llm        StreamingLLMClient
	dispatcher *Dispatcher
	clinics    clinic.ConfigSource
	orgID      string
	model      string

	maxTokens   int32
	callTimeout time.Duration

	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	nowFn   func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCallTimeout bounds each completion-service call.
func WithCallTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int32) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func WithOrchestratorLogger(l *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithOrchestratorMetrics(m *metrics.BookingMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(llm StreamingLLMClient, dispatcher *Dispatcher, clinics clinic.ConfigSource, orgID, model string, opts ...OrchestratorOption) *Orchestrator {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if dispatcher == nil {
		panic("conversation: dispatcher cannot be nil")
	}
	if clinics == nil {
		panic("conversation: clinic config source cannot be nil")
	}
	o := &Orchestrator{
		llm:         llm,
		dispatcher:  dispatcher,
		clinics:     clinics,
		orgID:       orgID,
		model:       model,
		maxTokens:   defaultMaxTokens,
		callTimeout: defaultCallTimeout,
		logger:      logging.Default(),
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Respond handles one turn. The first completion call is buffered because
// its shape (text vs tool calls) is unknown until it finishes; the reply the
// caller sees always comes from a second, streamed call.
func (o *Orchestrator) Respond(ctx context.Context, history []ChatMessage, sink StreamSink) error {
	if len(history) == 0 {
		return errors.New("conversation: empty history")
	}
	ctx, span := orchestratorTracer.Start(ctx, "conversation.respond")
	defer span.End()

	cfg, err := o.clinics.Get(ctx, o.orgID)
	if err != nil {
		return fmt.Errorf("conversation: load clinic config: %w", err)
	}
	tools, err := o.dispatcher.Definitions(ctx)
	if err != nil {
		return err
	}

	system := []string{buildSystemPrompt(cfg, o.nowFn())}
	req := LLMRequest{
		Model:     o.model,
		System:    system,
		Messages:  history,
		Tools:     tools,
		MaxTokens: o.maxTokens,
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	resp, err := o.llm.Complete(dispatchCtx, req)
	cancel()
	if err != nil {
		span.RecordError(err)
		return classifyUpstreamError(err)
	}
	span.SetAttributes(attribute.Int("booking.tool_calls", len(resp.ToolCalls)))

	messages := history
	if len(resp.ToolCalls) > 0 {
		messages = append(messages, ChatMessage{
			Role:      ChatRoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, o.dispatcher.Dispatch(ctx, resp.ToolCalls)...)
	}

	// The streamed call carries no tool schemas: tool dispatch is done,
	// the model's only remaining job is to phrase the answer.
	streamReq := LLMRequest{
		Model:     o.model,
		System:    system,
		Messages:  messages,
		MaxTokens: o.maxTokens,
	}
	return o.relay(ctx, streamReq, sink)
}

func (o *Orchestrator) relay(ctx context.Context, req LLMRequest, sink StreamSink) error {
	ctx, span := orchestratorTracer.Start(ctx, "conversation.stream")
	defer span.End()

	streamCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := o.nowFn()
	chunks, err := o.llm.CompleteStream(streamCtx, req)
	if err != nil {
		span.RecordError(err)
		return classifyUpstreamError(err)
	}

	backend := backendName(o.llm)
	for chunk := range chunks {
		if chunk.Error != nil {
			span.RecordError(chunk.Error)
			o.metrics.ObserveStreamDuration(backend, time.Since(start).Seconds())
			return classifyUpstreamError(chunk.Error)
		}
		if chunk.Done {
			break
		}
		if chunk.Text == "" {
			continue
		}
		if err := sink.Delta(chunk.Text); err != nil {
			// Caller went away. Cancel upstream and stop; nothing is owed.
			cancel()
			o.logger.Info("caller disconnected mid-stream", "error", err.Error())
			return nil
		}
	}
	if streamCtx.Err() != nil && ctx.Err() == nil {
		return ErrServiceUnavailable
	}
	o.metrics.ObserveStreamDuration(backend, time.Since(start).Seconds())
	return nil
}
