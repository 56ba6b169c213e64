package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/avaclinic/booking-assistant/internal/appointments"
)

type stubActor struct {
	outcome *appointments.Outcome
	err     error

	gotToken  string
	gotAction appointments.Action
}

func (s *stubActor) Act(_ context.Context, token string, action appointments.Action) (*appointments.Outcome, error) {
	s.gotToken = token
	s.gotAction = action
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

func getConfirm(t *testing.T, actor ConfirmationActor, query string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewConfirmHandler(actor, nil)
	req := httptest.NewRequest(http.MethodGet, "/appointments/confirm?"+query, nil)
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)
	return rec
}

func outcomeWith(status appointments.Status, already bool) *appointments.Outcome {
	return &appointments.Outcome{
		Appointment: &appointments.Appointment{
			ID:     uuid.New(),
			Date:   "2026-03-03",
			Time:   "10:00",
			Status: status,
		},
		Status:  status,
		Already: already,
	}
}

func TestConfirmSuccess(t *testing.T) {
	actor := &stubActor{outcome: outcomeWith(appointments.StatusConfirmed, false)}
	rec := getConfirm(t, actor, "token=tok-1&action=confirm")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if actor.gotToken != "tok-1" || actor.gotAction != appointments.ActionConfirm {
		t.Fatalf("actor got token=%q action=%q", actor.gotToken, actor.gotAction)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Appointment confirmed") {
		t.Fatalf("body = %s", body)
	}
	if !strings.Contains(body, "2026-03-03") {
		t.Fatalf("appointment detail missing: %s", body)
	}
}

func TestConfirmCancelPage(t *testing.T) {
	actor := &stubActor{outcome: outcomeWith(appointments.StatusCancelled, false)}
	rec := getConfirm(t, actor, "token=tok-1&action=cancel")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Appointment cancelled") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestConfirmAlreadyPages(t *testing.T) {
	cases := []struct {
		name   string
		status appointments.Status
		want   string
	}{
		{"already cancelled", appointments.StatusCancelled, "Already cancelled"},
		{"already confirmed", appointments.StatusConfirmed, "Already confirmed"},
		{"already completed", appointments.StatusCompleted, "already taken place"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor := &stubActor{outcome: outcomeWith(tc.status, true)}
			rec := getConfirm(t, actor, "token=tok-1&action=confirm")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, idempotent repeats are not errors", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	actor := &stubActor{err: appointments.ErrTokenNotFound}
	rec := getConfirm(t, actor, "token=leaked&action=confirm")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "invalid or expired") {
		t.Fatalf("body = %s", body)
	}
	// Enumeration defense: the page must not say whether the token existed.
	if strings.Contains(body, "leaked") {
		t.Fatalf("token echoed back: %s", body)
	}
}

func TestConfirmInvalidAction(t *testing.T) {
	actor := &stubActor{}
	rec := getConfirm(t, actor, "token=tok-1&action=destroy")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if actor.gotToken != "" {
		t.Fatal("service must not be called for invalid actions")
	}
}

func TestConfirmInternalError(t *testing.T) {
	actor := &stubActor{err: context.DeadlineExceeded}
	rec := getConfirm(t, actor, "token=tok-1&action=cancel")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
