package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jefjesuswt/accounts-server/internal/model"
)

// ErrDuplicateEmail is returned when an insert or update collides with the
// unique email constraint.
var ErrDuplicateEmail = errors.New("duplicate email")

const userColumns = `id, email, password_hash, name, phone_number, role, email_confirmed, profile_picture_url, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, phone_number, role, email_confirmed, profile_picture_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, user.ID, user.Email, user.PasswordHash, user.Name, user.PhoneNumber, user.Role, user.EmailConfirmed, user.ProfilePictureURL, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UserUpdate carries optional fields for partial updates; nil means keep.
type UserUpdate struct {
	Email             *string
	Name              *string
	PhoneNumber       *string
	Role              *string
	PasswordHash      *string
	ProfilePictureURL *string
}

func (s *Store) UpdateUser(ctx context.Context, userID string, update UserUpdate) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET
			email = COALESCE($2, email),
			name = COALESCE($3, name),
			phone_number = COALESCE($4, phone_number),
			role = COALESCE($5, role),
			password_hash = COALESCE($6, password_hash),
			profile_picture_url = COALESCE($7, profile_picture_url),
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		userID, update.Email, update.Name, update.PhoneNumber, update.Role, update.PasswordHash, update.ProfilePictureURL)
	user, err := scanUser(row)
	if isUniqueViolation(err) {
		return model.User{}, ErrDuplicateEmail
	}
	return user, err
}

// UpdatePassword rotates the password hash for the account with the given
// email. Returns false when no such account exists.
func (s *Store) UpdatePassword(ctx context.Context, email, passwordHash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE email = $1
	`, email, passwordHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ConfirmEmail(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET email_confirmed = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, userID)
	return scanUser(row)
}

func (s *Store) DeleteUser(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.PhoneNumber,
		&user.Role,
		&user.EmailConfirmed,
		&user.ProfilePictureURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
