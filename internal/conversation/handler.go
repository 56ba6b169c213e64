package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/avaclinic/booking-assistant/pkg/logging"
)

// Handler serves the dialogue endpoint. Replies stream as server-sent events;
// failures before the first delta still get a proper HTTP status.
type Handler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger

	maxHistoryMessages int
	maxMessageBytes    int64
}

func NewHandler(orchestrator *Orchestrator, logger *logging.Logger) *Handler {
	if orchestrator == nil {
		panic("conversation: orchestrator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orchestrator:       orchestrator,
		logger:             logger,
		maxHistoryMessages: 64,
		maxMessageBytes:    64 * 1024,
	}
}

type chatRequest struct {
	Messages []chatRequestMessage `json:"messages"`
}

type chatRequestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxMessageBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	history, err := h.validate(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sink := newSSESink(w)
	err = h.orchestrator.Respond(r.Context(), history, sink)
	if err != nil {
		h.fail(w, r, sink, err)
		return
	}
	sink.Done()
}

// fail maps an orchestrator error onto the response. If streaming has not
// begun the status code still carries the class; after the first delta the
// only channel left is a terminal error frame.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, sink *sseSink, err error) {
	if r.Context().Err() != nil {
		return
	}

	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
		message = "the assistant is receiving too many requests, try again shortly"
	case errors.Is(err, ErrQuotaExhausted):
		status = http.StatusPaymentRequired
		message = "the assistant's usage quota is exhausted"
	case errors.Is(err, ErrServiceUnavailable):
		status = http.StatusInternalServerError
		message = "the assistant is temporarily unavailable"
	case errors.Is(err, ErrTruncatedStream):
		message = "the reply was cut off, please retry"
	}

	h.logger.Error("dialogue turn failed", "status", status, "error", err.Error())
	if sink.started() {
		sink.Fail(message)
		return
	}
	writeJSONError(w, status, message)
}

func (h *Handler) validate(req chatRequest) ([]ChatMessage, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("messages must not be empty")
	}
	if len(req.Messages) > h.maxHistoryMessages {
		return nil, fmt.Errorf("history exceeds %d messages", h.maxHistoryMessages)
	}

	history := make([]ChatMessage, 0, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case ChatRoleUser, ChatRoleAssistant:
		default:
			return nil, fmt.Errorf("messages[%d]: role must be user or assistant", i)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, fmt.Errorf("messages[%d]: content must not be empty", i)
		}
		history = append(history, ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	if history[len(history)-1].Role != ChatRoleUser {
		return nil, errors.New("last message must be from the user")
	}
	return history, nil
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sseSink writes reply frames as server-sent events. Headers go out lazily
// on the first delta so pre-stream failures keep their status codes.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	began   bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	flusher, _ := w.(http.Flusher)
	return &sseSink{w: w, flusher: flusher}
}

func (s *sseSink) started() bool { return s.began }

func (s *sseSink) begin() {
	if s.began {
		return
	}
	s.began = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

type sseFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *sseSink) Delta(text string) error {
	s.begin()
	return s.write(sseFrame{Type: "delta", Text: text})
}

func (s *sseSink) Done() {
	s.begin()
	_ = s.write(sseFrame{Type: "done"})
}

func (s *sseSink) Fail(message string) {
	s.begin()
	_ = s.write(sseFrame{Type: "error", Message: message})
}

func (s *sseSink) write(frame sseFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

var _ StreamSink = (*sseSink)(nil)
