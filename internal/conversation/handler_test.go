package conversation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler(llm StreamingLLMClient) *Handler {
	return NewHandler(newTestOrchestrator(llm, &fakeBooking{}), nil)
}

func postChat(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	return rec
}

func decodeFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		payload := strings.TrimPrefix(block, "data: ")
		var frame sseFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", block, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestChatStreamsReply(t *testing.T) {
	llm := &scriptedLLM{
		completeResp: LLMResponse{Text: "Hello there."},
		streamChunks: []StreamChunk{{Text: "Hello "}, {Text: "there."}, {Done: true}},
	}
	rec := postChat(t, newTestHandler(llm), `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 3 {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[0].Type != "delta" || frames[0].Text != "Hello " {
		t.Fatalf("first frame = %+v", frames[0])
	}
	if frames[2].Type != "done" {
		t.Fatalf("last frame = %+v", frames[2])
	}
}

func TestChatValidation(t *testing.T) {
	h := newTestHandler(&scriptedLLM{})

	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"no messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"tool","content":"x"}]}`},
		{"empty content", `{"messages":[{"role":"user","content":"  "}]}`},
		{"assistant last", `{"messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postChat(t, h, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("content type = %q", ct)
			}
		})
	}
}

func TestChatUpstreamStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"quota exhausted", ErrQuotaExhausted, http.StatusPaymentRequired},
		{"unavailable", ErrServiceUnavailable, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &scriptedLLM{completeErr: tc.err}
			rec := postChat(t, newTestHandler(llm), `{"messages":[{"role":"user","content":"hi"}]}`)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("body = %q: %v", rec.Body.String(), err)
			}
			if payload["error"] == "" {
				t.Fatal("error message missing")
			}
		})
	}
}

func TestChatMidStreamFailureUsesErrorFrame(t *testing.T) {
	llm := &scriptedLLM{
		completeResp: LLMResponse{Text: "x"},
		streamChunks: []StreamChunk{
			{Text: "partial "},
			{Error: ErrTruncatedStream, Done: true},
		},
	}
	rec := postChat(t, newTestHandler(llm), `{"messages":[{"role":"user","content":"hi"}]}`)

	// Streaming already began, so the status is 200 and the failure rides
	// in a terminal error frame.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	frames := decodeFrames(t, rec.Body.String())
	last := frames[len(frames)-1]
	if last.Type != "error" || last.Message == "" {
		t.Fatalf("last frame = %+v, want error frame", last)
	}
}
