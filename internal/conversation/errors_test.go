package conversation

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestClassifyUpstreamError(t *testing.T) {
	opaque := errors.New("something odd")

	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"rate limit", &openai.APIError{HTTPStatusCode: 429}, ErrRateLimited},
		{"quota by code", &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"}, ErrQuotaExhausted},
		{"quota by type", &openai.APIError{HTTPStatusCode: 429, Type: "insufficient_quota"}, ErrQuotaExhausted},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, ErrServiceUnavailable},
		{"request error 429", &openai.RequestError{HTTPStatusCode: 429, Err: opaque}, ErrRateLimited},
		{"request error 500", &openai.RequestError{HTTPStatusCode: 500, Err: opaque}, ErrServiceUnavailable},
		{"deadline", context.DeadlineExceeded, ErrServiceUnavailable},
		{"cancellation passes through", context.Canceled, context.Canceled},
		{"opaque passes through", opaque, opaque},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyUpstreamError(tc.in)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassifyKeepsClientErrors(t *testing.T) {
	err := &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}
	if got := classifyUpstreamError(err); !errors.Is(got, err) {
		t.Fatalf("400 should pass through, got %v", got)
	}
}
