package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avaclinic/booking-assistant/internal/clinic"
)

// fixedNow is a Monday so that the following days are open weekdays and the
// following Sunday exercises the closed-day rule.
var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

const (
	openDate   = "2026-03-03" // Tuesday
	closedDate = "2026-03-08" // Sunday
	pastDate   = "2026-03-01"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository()
	cfg := clinic.DefaultConfig("org-test")
	cfg.Timezone = "UTC"
	cfg.Notifications.EmailEnabled = false
	opts = append(opts, withNow(func() time.Time { return fixedNow }))
	svc := NewService(repo, clinic.NewStaticSource(cfg), "org-test", opts...)
	return svc, repo
}

func validRequest() BookingRequest {
	return BookingRequest{
		ResourceID:   "loc-A",
		ServiceID:    "general",
		Date:         openDate,
		Time:         "10:00",
		PatientName:  "Dana Reeves",
		PatientPhone: "+15550001234",
		PatientEmail: "dana@example.com",
	}
}

func TestBookSuccess(t *testing.T) {
	svc, _ := newTestService(t)

	appt, err := svc.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Book returned error: %v", err)
	}
	if appt.Status != StatusPending {
		t.Fatalf("status = %q, want pending", appt.Status)
	}
	if len(appt.ConfirmationToken) != 32 {
		t.Fatalf("token length = %d, want 32 hex chars", len(appt.ConfirmationToken))
	}

	free, err := svc.FreeSlots(context.Background(), "loc-A", openDate)
	if err != nil {
		t.Fatalf("FreeSlots returned error: %v", err)
	}
	for _, slot := range free {
		if slot == "10:00" {
			t.Fatalf("booked slot still listed as free: %v", free)
		}
	}
}

func TestBookValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name    string
		mutate  func(*BookingRequest)
		wantErr error
	}{
		{"unknown resource", func(r *BookingRequest) { r.ResourceID = "loc-Z" }, ErrInvalidReference},
		{"unknown service", func(r *BookingRequest) { r.ServiceID = "massage" }, ErrInvalidReference},
		{"time off grid", func(r *BookingRequest) { r.Time = "10:30" }, ErrInvalidReference},
		{"bad date", func(r *BookingRequest) { r.Date = "03/04/2026" }, ErrInvalidReference},
		{"no contact", func(r *BookingRequest) { r.PatientPhone = ""; r.PatientEmail = "" }, ErrMissingContact},
		{"no name", func(r *BookingRequest) { r.PatientName = "" }, ErrMissingContact},
		{"past date", func(r *BookingRequest) { r.Date = pastDate }, ErrPastDate},
		{"closed day", func(r *BookingRequest) { r.Date = closedDate }, ErrClosedDay},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			if _, err := svc.Book(context.Background(), req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Book error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestBookSameDayAllowed(t *testing.T) {
	svc, _ := newTestService(t)

	req := validRequest()
	req.Date = "2026-03-02"
	if _, err := svc.Book(context.Background(), req); err != nil {
		t.Fatalf("same-day booking rejected: %v", err)
	}
}

func TestBookSlotTakenReturnsAlternatives(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Book(context.Background(), validRequest()); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := svc.Book(context.Background(), validRequest())
	var unavailable *SlotUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("second booking error = %v, want SlotUnavailableError", err)
	}
	if unavailable.Time != "10:00" {
		t.Fatalf("error time = %q, want 10:00", unavailable.Time)
	}
	for _, alt := range unavailable.Alternatives {
		if alt == "10:00" {
			t.Fatalf("taken slot offered as alternative: %v", unavailable.Alternatives)
		}
	}
	if len(unavailable.Alternatives) == 0 {
		t.Fatal("expected free alternatives on an otherwise empty day")
	}
}

func TestBookSameTimeOtherResource(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Book(context.Background(), validRequest()); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	req := validRequest()
	req.ResourceID = "loc-B"
	if _, err := svc.Book(context.Background(), req); err != nil {
		t.Fatalf("other resource, same time should be bookable: %v", err)
	}
}

func TestBookConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), validRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		default:
			var unavailable *SlotUnavailableError
			if !errors.As(err, &unavailable) {
				t.Fatalf("unexpected racer error: %v", err)
			}
			lost++
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1 (losers: %d)", won, lost)
	}
}

func TestBookCancelledSlotRebookable(t *testing.T) {
	svc, repo := newTestService(t)

	appt, err := svc.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := repo.TransitionFromPending(context.Background(), appt.ID, StatusCancelled, nil); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	free, err := svc.FreeSlots(context.Background(), "loc-A", openDate)
	if err != nil {
		t.Fatalf("FreeSlots returned error: %v", err)
	}
	found := false
	for _, slot := range free {
		if slot == "10:00" {
			found = true
		}
	}
	if !found {
		t.Fatalf("cancelled slot not freed: %v", free)
	}

	if _, err := svc.Book(context.Background(), validRequest()); err != nil {
		t.Fatalf("rebooking a cancelled slot failed: %v", err)
	}
}

type recordingNotifier struct {
	called chan *Appointment
	err    error
}

func (n *recordingNotifier) BookingCreated(_ context.Context, appt *Appointment, _ *clinic.Config) error {
	n.called <- appt
	return n.err
}

func TestBookNotifiesOnSuccess(t *testing.T) {
	notifier := &recordingNotifier{called: make(chan *Appointment, 1)}
	repo := NewInMemoryRepository()
	cfg := clinic.DefaultConfig("org-test")
	cfg.Timezone = "UTC"
	svc := NewService(repo, clinic.NewStaticSource(cfg), "org-test",
		WithNotifier(notifier),
		withNow(func() time.Time { return fixedNow }),
	)

	appt, err := svc.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Book returned error: %v", err)
	}

	select {
	case got := <-notifier.called:
		if got.ID != appt.ID {
			t.Fatalf("notified about %s, want %s", got.ID, appt.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never called")
	}
}

func TestBookSucceedsWhenNotifierFails(t *testing.T) {
	notifier := &recordingNotifier{
		called: make(chan *Appointment, 1),
		err:    errors.New("smtp down"),
	}
	repo := NewInMemoryRepository()
	cfg := clinic.DefaultConfig("org-test")
	cfg.Timezone = "UTC"
	svc := NewService(repo, clinic.NewStaticSource(cfg), "org-test",
		WithNotifier(notifier),
		withNow(func() time.Time { return fixedNow }),
	)

	if _, err := svc.Book(context.Background(), validRequest()); err != nil {
		t.Fatalf("Book failed because of notifier: %v", err)
	}
	<-notifier.called
}

func TestFreeSlotsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.FreeSlots(context.Background(), "loc-Z", openDate); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("unknown resource error = %v, want ErrInvalidReference", err)
	}
	if _, err := svc.FreeSlots(context.Background(), "loc-A", pastDate); !errors.Is(err, ErrPastDate) {
		t.Fatalf("past date error = %v, want ErrPastDate", err)
	}
	if _, err := svc.FreeSlots(context.Background(), "loc-A", closedDate); !errors.Is(err, ErrClosedDay) {
		t.Fatalf("closed day error = %v, want ErrClosedDay", err)
	}
}

func TestFreeSlotsEmptyDayReturnsFullGrid(t *testing.T) {
	svc, _ := newTestService(t)

	free, err := svc.FreeSlots(context.Background(), "loc-A", openDate)
	if err != nil {
		t.Fatalf("FreeSlots returned error: %v", err)
	}
	want := clinic.DefaultConfig("org-test").SlotGrid()
	if len(free) != len(want) {
		t.Fatalf("free = %v, want full grid %v", free, want)
	}
	for i := range want {
		if free[i] != want[i] {
			t.Fatalf("free[%d] = %q, want %q (grid order must be preserved)", i, free[i], want[i])
		}
	}
}
