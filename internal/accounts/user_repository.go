package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/libs/db"
)

var ErrPhoneTaken = errors.New("phone number already registered")

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (phone_number, full_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, user.PhoneNumber, user.FullName, user.Email, user.PasswordHash, user.Role).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrPhoneTaken
		}
		return "", err
	}
	return id, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.get(ctx, `WHERE phone_number = $1`, phone)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id, fullName, email string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET full_name = $2, email = $3, updated_at = now()
		WHERE id = $1
	`, id, fullName, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *UserRepository) get(ctx context.Context, where string, arg any) (model.User, error) {
	var user model.User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, phone_number, COALESCE(full_name, ''), COALESCE(email, ''),
			password_hash, role, created_at, updated_at
		FROM users
		`+where, arg).Scan(
		&user.ID,
		&user.PhoneNumber,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
