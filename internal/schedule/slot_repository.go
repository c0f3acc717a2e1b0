package schedule

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/libs/db"
)

// SlotRepository stores time slots in Postgres and implements SlotStore by
// locking the whole (provider, branch, service) window with FOR UPDATE, so
// concurrent reservations for the same triple serialize on the row locks.
type SlotRepository struct {
	pool *db.Pool
}

func NewSlotRepository(pool *db.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

const slotColumns = `id::text, provider_id::text, branch_id::text, service_id::text,
	start_time, duration_minutes, booked, created_at, updated_at`

func (r *SlotRepository) Create(ctx context.Context, slot *model.TimeSlot) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO time_slots (provider_id, branch_id, service_id, start_time, duration_minutes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, slot.ProviderID, slot.BranchID, slot.ServiceID, slot.StartTime, slot.DurationMinutes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id string) (model.TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// ListFilter narrows ListAvailable. Zero values mean "any".
type ListFilter struct {
	ProviderID string
	BranchID   string
	ServiceID  string
	Start      time.Time
	End        time.Time
}

// ListAvailable returns unbooked slots matching the filter, ascending by start time.
func (r *SlotRepository) ListAvailable(ctx context.Context, f ListFilter) ([]model.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE booked = false`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += clause + "$" + strconv.Itoa(len(args))
	}
	if f.ProviderID != "" {
		add(" AND provider_id = ", f.ProviderID)
	}
	if f.BranchID != "" {
		add(" AND branch_id = ", f.BranchID)
	}
	if f.ServiceID != "" {
		add(" AND service_id = ", f.ServiceID)
	}
	if !f.Start.IsZero() {
		add(" AND start_time >= ", f.Start)
	}
	if !f.End.IsZero() {
		add(" AND start_time < ", f.End)
	}
	query += `
		ORDER BY start_time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

// ReserveTx runs fn against all slots for the triple, locked for update.
func (r *SlotRepository) ReserveTx(ctx context.Context, providerID, branchID, serviceID string, fn func(ReserveTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE provider_id = $1 AND branch_id = $2 AND service_id = $3
		ORDER BY start_time ASC
		FOR UPDATE
	`, providerID, branchID, serviceID)
	if err != nil {
		return err
	}
	slots, err := collectSlots(rows)
	if err != nil {
		return err
	}

	if err := fn(&pgReserveTx{ctx: ctx, tx: tx, slots: slots}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgReserveTx struct {
	ctx   context.Context
	tx    pgx.Tx
	slots []model.TimeSlot
}

func (t *pgReserveTx) Slots() []model.TimeSlot { return t.slots }

func (t *pgReserveTx) SetBooked(ids []string, booked bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(t.ctx, `
		UPDATE time_slots
		SET booked = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, booked)
	return err
}

func scanSlot(row pgx.Row) (model.TimeSlot, error) {
	var s model.TimeSlot
	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.BranchID,
		&s.ServiceID,
		&s.StartTime,
		&s.DurationMinutes,
		&s.Booked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return model.TimeSlot{}, err
	}
	return s, nil
}

func collectSlots(rows pgx.Rows) ([]model.TimeSlot, error) {
	defer rows.Close()
	var slots []model.TimeSlot
	for rows.Next() {
		var s model.TimeSlot
		if err := rows.Scan(
			&s.ID,
			&s.ProviderID,
			&s.BranchID,
			&s.ServiceID,
			&s.StartTime,
			&s.DurationMinutes,
			&s.Booked,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

// IsDuplicate reports a unique-constraint violation, e.g. two slots for the
// same (provider, start_time).
func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
