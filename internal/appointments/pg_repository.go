package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avaclinic/booking-assistant/internal/schedule"
)

const uniqueViolation = "23505"

// PgQuerier is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type PgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgRepository persists appointments in Postgres.
type PgRepository struct {
	db PgQuerier
}

// NewPgRepository creates a Postgres-backed repository.
func NewPgRepository(db PgQuerier) *PgRepository {
	if db == nil {
		panic("appointments: pg querier required")
	}
	return &PgRepository{db: db}
}

const appointmentColumns = `id, resource_id, date, time, service_id, patient_name, patient_phone, patient_email, status, confirmation_token, reminder_sent_at, confirmed_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a    Appointment
		date time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.ResourceID,
		&date,
		&a.Time,
		&a.ServiceID,
		&a.PatientName,
		&a.PatientPhone,
		&a.PatientEmail,
		&a.Status,
		&a.ConfirmationToken,
		&a.ReminderSentAt,
		&a.ConfirmedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Date = date.Format(schedule.DateLayout)
	return &a, nil
}

// Insert persists a new appointment row. The partial unique index on
// (resource_id, date, time) among non-cancelled rows is the race arbiter;
// its violation surfaces as ErrSlotTaken.
func (r *PgRepository) Insert(ctx context.Context, appt *Appointment) error {
	date, err := schedule.ParseDate(appt.Date)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO appointments (id, resource_id, date, time, service_id, patient_name, patient_phone, patient_email, status, confirmation_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`,
		appt.ID,
		appt.ResourceID,
		date,
		appt.Time,
		appt.ServiceID,
		appt.PatientName,
		appt.PatientPhone,
		appt.PatientEmail,
		appt.Status,
		appt.ConfirmationToken,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// GetByToken loads the appointment bound to a confirmation token.
func (r *PgRepository) GetByToken(ctx context.Context, token string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE confirmation_token = $1
	`, token)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("appointments: get by token: %w", err)
	}
	return appt, nil
}

// BookedTimes lists occupied slot times for a resource+date, excluding
// cancelled rows so a cancelled slot is bookable again immediately.
func (r *PgRepository) BookedTimes(ctx context.Context, resourceID, dateStr string) ([]string, error) {
	date, err := schedule.ParseDate(dateStr)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT time
		FROM appointments
		WHERE resource_id = $1
		  AND date = $2
		  AND status <> 'cancelled'
		ORDER BY time
	`, resourceID, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: booked times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("appointments: booked times scan: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: booked times rows: %w", err)
	}
	return times, nil
}

// TransitionFromPending applies a conditional status update. The WHERE clause
// on status makes concurrent confirm/cancel race-safe: exactly one caller
// sees a row, the loser gets ErrNotFound and re-reads the terminal state.
func (r *PgRepository) TransitionFromPending(ctx context.Context, id uuid.UUID, to Status, confirmedAt *time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    confirmed_at = COALESCE($3, confirmed_at),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, to, confirmedAt)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: transition: %w", err)
	}
	return appt, nil
}

var _ Repository = (*PgRepository)(nil)
