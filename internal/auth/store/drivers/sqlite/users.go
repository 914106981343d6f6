package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/internal/auth/store"
	"github.com/heronworks/authcore/pkg/idx"
)

type usersRepo struct {
	q querier
}

// Every query filters on deleted_at IS NULL explicitly. Soft-deleted rows
// stay for audit but are invisible to the application.
const userColumns = `id, email, username, password_hash, first_name, last_name,
	email_verified, active, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		id        string
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&id, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.EmailVerified, &u.Active, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = idx.ID(id)
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id idx.ID) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`,
		id.String())
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = lower(?) AND deleted_at IS NULL`,
		email)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`,
		username)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserBySocialLogin(ctx context.Context, provider, providerKey string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name,
			u.email_verified, u.active, u.created_at, u.updated_at, u.deleted_at
		FROM users u
		JOIN social_logins s ON s.user_id = u.id
		WHERE s.provider = ? AND s.provider_key = ? AND u.deleted_at IS NULL`,
		provider, providerKey)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) IsEmailOrUsernameTaken(ctx context.Context, email, username string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users
		WHERE (email = lower(?) OR username = ?) AND deleted_at IS NULL`,
		email, username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, first_name, last_name,
			email_verified, active, created_at, updated_at)
		VALUES (?, lower(?), ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName,
		u.EmailVerified, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID idx.ID, newHash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		newHash, time.Now().UTC(), userID.String())
}

func (r *usersRepo) SetEmailVerified(ctx context.Context, userID idx.ID, verified bool) error {
	return r.exec(ctx,
		`UPDATE users SET email_verified = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		verified, time.Now().UTC(), userID.String())
}

func (r *usersRepo) SetActive(ctx context.Context, userID idx.ID, active bool) error {
	return r.exec(ctx,
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		active, time.Now().UTC(), userID.String())
}

func (r *usersRepo) SoftDeleteUser(ctx context.Context, userID idx.ID) error {
	return r.exec(ctx,
		`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), userID.String())
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID idx.ID) error {
	// Hard delete; the schema cascades to refresh_tokens and social_logins.
	return r.exec(ctx, `DELETE FROM users WHERE id = ?`, userID.String())
}

func (r *usersRepo) ListUsers(ctx context.Context, page store.UserPage) ([]domain.User, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		WHERE id > ? AND deleted_at IS NULL
		ORDER BY id ASC LIMIT ?`,
		page.Cursor.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
