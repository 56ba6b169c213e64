package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avaclinic/booking-assistant/pkg/logging"
)

var openaiTracer = otel.Tracer("booking.internal.conversation.openai")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements LLMClient and StreamingLLMClient against the
// OpenAI chat completions API. Buffered calls go through the SDK; the
// streaming path speaks the SSE wire protocol directly so end-of-stream
// sentinel handling and truncation detection stay observable.
type OpenAIClient struct {
	api        chatCompleter
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *logging.Logger
}

// NewOpenAIClient builds a client for the given API key. baseURL overrides
// the public endpoint for proxies and tests; empty means api.openai.com.
func NewOpenAIClient(apiKey, baseURL string, logger *logging.Logger) *OpenAIClient {
	if apiKey == "" {
		panic("conversation: openai api key cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIClient{
		api:        openai.NewClientWithConfig(cfg),
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    cfg.BaseURL,
		logger:     logger,
	}
}

// Name identifies this backend in logs and metrics.
func (c *OpenAIClient) Name() string { return "openai" }

// Complete performs a buffered chat completion, with tool use when the
// request carries tool definitions.
func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	ctx, span := openaiTracer.Start(ctx, "conversation.openai.complete")
	defer span.End()

	apiReq, err := c.buildRequest(req)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		span.RecordError(err)
		if classified := classifyUpstreamError(err); classified != err {
			return LLMResponse{}, classified
		}
		return LLMResponse{}, fmt.Errorf("conversation: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("conversation: openai returned no choices")
		span.RecordError(err)
		return LLMResponse{}, err
	}

	choice := resp.Choices[0]
	out := LLMResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if span.IsRecording() {
		span.SetAttributes(attribute.Int("booking.openai.tool_calls", len(out.ToolCalls)))
	}
	return out, nil
}

// CompleteStream performs a streamed chat completion. Frames are decoded
// incrementally; the returned channel closes after a Done or Error chunk.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error) {
	apiReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	apiReq.Stream = true
	apiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("conversation: marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("conversation: build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyUpstreamError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFromStatus(resp)
	}

	chunks := make(chan StreamChunk, 32)
	go c.relay(ctx, resp.Body, chunks)
	return chunks, nil
}

// relay decodes SSE frames off the response body and forwards text deltas.
func (c *OpenAIClient) relay(ctx context.Context, body io.ReadCloser, chunks chan<- StreamChunk) {
	defer close(chunks)
	defer body.Close()

	var (
		dec   frameDecoder
		usage TokenUsage
		buf   [4096]byte
	)
	for {
		n, readErr := body.Read(buf[:])
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				payload, ok := dec.Next()
				if !ok {
					break
				}
				var frame openai.ChatCompletionStreamResponse
				if err := json.Unmarshal([]byte(payload), &frame); err != nil {
					// A malformed frame is skipped, not fatal.
					c.logger.Warn("dropping unparseable stream frame", "error", err.Error())
					continue
				}
				if frame.Usage != nil {
					usage = TokenUsage{
						InputTokens:  int32(frame.Usage.PromptTokens),
						OutputTokens: int32(frame.Usage.CompletionTokens),
						TotalTokens:  int32(frame.Usage.TotalTokens),
					}
				}
				if len(frame.Choices) == 0 {
					continue
				}
				if text := frame.Choices[0].Delta.Content; text != "" {
					select {
					case chunks <- StreamChunk{Text: text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if dec.Done() {
			select {
			case chunks <- StreamChunk{Done: true, Usage: usage}:
			case <-ctx.Done():
			}
			return
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return
			}
			// Connection closed without the sentinel.
			select {
			case chunks <- StreamChunk{Error: ErrTruncatedStream, Done: true}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// errorFromStatus maps a non-200 pre-stream response into the error taxonomy.
func (c *OpenAIClient) errorFromStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &apiErr)

	if apiErr.Error.Code == quotaErrorCode || apiErr.Error.Type == quotaErrorCode {
		return ErrQuotaExhausted
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return ErrServiceUnavailable
	}
	if apiErr.Error.Message != "" {
		return fmt.Errorf("conversation: openai stream rejected: %s", apiErr.Error.Message)
	}
	return fmt.Errorf("conversation: openai stream rejected with status %d", resp.StatusCode)
}

func (c *OpenAIClient) buildRequest(req LLMRequest) (openai.ChatCompletionRequest, error) {
	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   int(req.MaxTokens),
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if out.Model == "" {
		return out, errors.New("conversation: model is required")
	}

	for _, sys := range req.System {
		if strings.TrimSpace(sys) == "" {
			continue
		}
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sys,
		})
	}

	for _, msg := range req.Messages {
		apiMsg := openai.ChatCompletionMessage{Content: msg.Content}
		switch msg.Role {
		case ChatRoleSystem:
			apiMsg.Role = openai.ChatMessageRoleSystem
		case ChatRoleUser:
			apiMsg.Role = openai.ChatMessageRoleUser
		case ChatRoleAssistant:
			apiMsg.Role = openai.ChatMessageRoleAssistant
			for _, tc := range msg.ToolCalls {
				apiMsg.ToolCalls = append(apiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case ChatRoleTool:
			apiMsg.Role = openai.ChatMessageRoleTool
			apiMsg.ToolCallID = msg.ToolCallID
		default:
			return out, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
		out.Messages = append(out.Messages, apiMsg)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out, nil
}
