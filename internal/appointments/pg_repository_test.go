package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPgRepository(mock)
}

func apptColumns() []string {
	return []string{
		"id", "resource_id", "date", "time", "service_id",
		"patient_name", "patient_phone", "patient_email",
		"status", "confirmation_token", "reminder_sent_at", "confirmed_at",
		"created_at", "updated_at",
	}
}

func TestPgInsertTranslatesUniqueViolation(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_slot_key"})

	appt := &Appointment{
		ID:                uuid.New(),
		ResourceID:        "loc-A",
		ServiceID:         "general",
		Date:              "2026-03-03",
		Time:              "10:00",
		PatientName:       "Dana Reeves",
		Status:            StatusPending,
		ConfirmationToken: "tok",
	}
	if err := repo.Insert(context.Background(), appt); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("Insert error = %v, want ErrSlotTaken", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgInsertSuccess(t *testing.T) {
	mock, repo := newMockRepo(t)

	appt := &Appointment{
		ID:                uuid.New(),
		ResourceID:        "loc-A",
		ServiceID:         "general",
		Date:              "2026-03-03",
		Time:              "10:00",
		PatientName:       "Dana Reeves",
		PatientPhone:      "+15550001234",
		PatientEmail:      "dana@example.com",
		Status:            StatusPending,
		ConfirmationToken: "tok",
	}
	date := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(appt.ID, appt.ResourceID, date, appt.Time, appt.ServiceID,
			appt.PatientName, appt.PatientPhone, appt.PatientEmail,
			appt.Status, appt.ConfirmationToken).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Insert(context.Background(), appt); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPgGetByTokenNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("SELECT .+ FROM appointments").
		WithArgs("no-such-token").
		WillReturnRows(pgxmock.NewRows(apptColumns()))

	if _, err := repo.GetByToken(context.Background(), "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("error = %v, want ErrTokenNotFound", err)
	}
}

func TestPgGetByTokenScansRow(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	date := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM appointments").
		WithArgs("tok").
		WillReturnRows(pgxmock.NewRows(apptColumns()).AddRow(
			id, "loc-A", date, "10:00", "general",
			"Dana Reeves", "+15550001234", "dana@example.com",
			StatusPending, "tok", (*time.Time)(nil), (*time.Time)(nil),
			created, created,
		))

	appt, err := repo.GetByToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("GetByToken returned error: %v", err)
	}
	if appt.ID != id {
		t.Fatalf("id = %s, want %s", appt.ID, id)
	}
	if appt.Date != "2026-03-03" {
		t.Fatalf("date = %q, want 2026-03-03", appt.Date)
	}
	if appt.Status != StatusPending {
		t.Fatalf("status = %q, want pending", appt.Status)
	}
}

func TestPgBookedTimesExcludesCancelled(t *testing.T) {
	mock, repo := newMockRepo(t)

	date := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT time\s+FROM appointments`).
		WithArgs("loc-A", date).
		WillReturnRows(pgxmock.NewRows([]string{"time"}).AddRow("09:00").AddRow("14:00"))

	times, err := repo.BookedTimes(context.Background(), "loc-A", "2026-03-03")
	if err != nil {
		t.Fatalf("BookedTimes returned error: %v", err)
	}
	if len(times) != 2 || times[0] != "09:00" || times[1] != "14:00" {
		t.Fatalf("times = %v", times)
	}
}

func TestPgTransitionFromPendingLosesRace(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusConfirmed, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(apptColumns()))

	now := time.Now().UTC()
	if _, err := repo.TransitionFromPending(context.Background(), id, StatusConfirmed, &now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound when no pending row matched", err)
	}
}

func TestPgTransitionFromPendingConfirms(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	date := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusConfirmed, &now).
		WillReturnRows(pgxmock.NewRows(apptColumns()).AddRow(
			id, "loc-A", date, "10:00", "general",
			"Dana Reeves", "", "dana@example.com",
			StatusConfirmed, "tok", (*time.Time)(nil), &now,
			now, now,
		))

	appt, err := repo.TransitionFromPending(context.Background(), id, StatusConfirmed, &now)
	if err != nil {
		t.Fatalf("TransitionFromPending returned error: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Fatalf("status = %q, want confirmed", appt.Status)
	}
	if appt.ConfirmedAt == nil || !appt.ConfirmedAt.Equal(now) {
		t.Fatalf("confirmed_at = %v, want %v", appt.ConfirmedAt, now)
	}
}
