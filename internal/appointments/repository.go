// Package appointments binds users to reserved slots and owns the
// cancellation path, which frees the slot in the same transaction.
package appointments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/libs/db"
)

var (
	ErrDuplicate     = errors.New("appointment already exists for this user and slot")
	ErrNotFound      = errors.New("appointment not found")
	ErrSlotNotBooked = errors.New("slot is not booked")
)

// Ledger is the appointment store as the HTTP layer sees it. Repository is
// the Postgres implementation; MemoryLedger backs tests.
type Ledger interface {
	Create(ctx context.Context, userID, slotID string) (model.Appointment, error)
	GetWithSlot(ctx context.Context, id string) (model.Appointment, error)
	Cancel(ctx context.Context, id string) error
	SetConfirmed(ctx context.Context, id string, confirmed bool) error
	ListByUser(ctx context.Context, userID string) ([]model.Appointment, error)
	ListByProvider(ctx context.Context, providerID string) ([]model.Appointment, error)
	ListAll(ctx context.Context) ([]model.Appointment, error)
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create records the user-facing booking for an already-booked slot. The slot
// flag is not touched here; reservation happened before this call. The insert
// re-reads the flag so a slot freed in between cannot gain an appointment.
func (r *Repository) Create(ctx context.Context, userID, slotID string) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (user_id, slot_id, status)
		SELECT $1, s.id, $3
		FROM time_slots s
		WHERE s.id = $2 AND s.booked
		RETURNING id::text, user_id::text, slot_id::text, status, created_at, updated_at
	`, userID, slotID, model.AppointmentPending).Scan(
		&appt.ID,
		&appt.UserID,
		&appt.SlotID,
		&appt.Status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrSlotNotBooked
		}
		if isUniqueViolation(err) {
			return model.Appointment{}, ErrDuplicate
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

// GetWithSlot loads an appointment plus its slot, used for authorization
// checks (slot provider) before cancellation.
func (r *Repository) GetWithSlot(ctx context.Context, id string) (model.Appointment, error) {
	var appt model.Appointment
	var slot model.TimeSlot
	err := r.pool.QueryRow(ctx, `
		SELECT a.id::text, a.user_id::text, a.slot_id::text, a.status, a.created_at, a.updated_at,
			s.id::text, s.provider_id::text, s.branch_id::text, s.service_id::text,
			s.start_time, s.duration_minutes, s.booked, s.created_at, s.updated_at
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.id = $1
	`, id).Scan(
		&appt.ID, &appt.UserID, &appt.SlotID, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt,
		&slot.ID, &slot.ProviderID, &slot.BranchID, &slot.ServiceID,
		&slot.StartTime, &slot.DurationMinutes, &slot.Booked, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	appt.Slot = &slot
	return appt, nil
}

// Cancel deletes the appointment and frees its slot in one transaction.
// Freeing the slot is idempotent; deleting a missing appointment is not.
func (r *Repository) Cancel(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var slotID string
	err = tx.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING slot_id::text
	`, id).Scan(&slotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE time_slots
		SET booked = false, updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) SetConfirmed(ctx context.Context, id string, confirmed bool) error {
	status := model.AppointmentPending
	if confirmed {
		status = model.AppointmentConfirmed
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]model.Appointment, error) {
	return r.list(ctx, `WHERE a.user_id = $1`, userID)
}

func (r *Repository) ListByProvider(ctx context.Context, providerID string) ([]model.Appointment, error) {
	return r.list(ctx, `WHERE s.provider_id = $1`, providerID)
}

func (r *Repository) ListAll(ctx context.Context) ([]model.Appointment, error) {
	return r.list(ctx, ``)
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.user_id::text, a.slot_id::text, a.status, a.created_at, a.updated_at,
			s.id::text, s.provider_id::text, s.branch_id::text, s.service_id::text,
			s.start_time, s.duration_minutes, s.booked, s.created_at, s.updated_at
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		`+where+`
		ORDER BY s.start_time ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var slot model.TimeSlot
		if err := rows.Scan(
			&appt.ID, &appt.UserID, &appt.SlotID, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt,
			&slot.ID, &slot.ProviderID, &slot.BranchID, &slot.ServiceID,
			&slot.StartTime, &slot.DurationMinutes, &slot.Booked, &slot.CreatedAt, &slot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		appt.Slot = &slot
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
