// Package directory stores branches and the services offered at them.
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateBranch(ctx context.Context, b model.Branch) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO branches (name, location, phone_number)
		VALUES ($1, $2, $3)
		RETURNING id
	`, b.Name, b.Location, b.PhoneNumber).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetBranch(ctx context.Context, id string) (model.Branch, error) {
	var b model.Branch
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, location, COALESCE(phone_number, ''), created_at, updated_at
		FROM branches
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Location, &b.PhoneNumber, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Branch{}, err
	}
	return b, nil
}

func (r *Repository) ListBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, location, COALESCE(phone_number, ''), created_at, updated_at
		FROM branches
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []model.Branch
	for rows.Next() {
		var b model.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Location, &b.PhoneNumber, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return branches, nil
}

func (r *Repository) UpdateBranch(ctx context.Context, b model.Branch) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE branches
		SET name = $2, location = $3, phone_number = $4, updated_at = now()
		WHERE id = $1
	`, b.ID, b.Name, b.Location, b.PhoneNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeleteBranch(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) CreateService(ctx context.Context, s model.Service) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (name, description, duration_minutes, price_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, s.Name, s.Description, s.DurationMinutes, s.PriceCents).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(description, ''), duration_minutes, price_cents, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Service{}, err
	}
	return s, nil
}

func (r *Repository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, COALESCE(description, ''), duration_minutes, price_cents, created_at, updated_at
		FROM services
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}

func (r *Repository) UpdateService(ctx context.Context, s model.Service) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services
		SET name = $2, description = $3, duration_minutes = $4, price_cents = $5, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Name, s.Description, s.DurationMinutes, s.PriceCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeleteService(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
