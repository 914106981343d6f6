package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/internal/auth/store"
	"github.com/heronworks/authcore/pkg/idx"
)

type refreshTokensRepo struct {
	q querier
}

const tokenColumns = `id, user_id, token_hash, expires_at, revoked, created_at,
	created_by_ip, revoked_at, revoked_by_ip, replaced_by`

func scanRefreshToken(row rowScanner) (domain.RefreshToken, error) {
	var (
		t         domain.RefreshToken
		id, uid   string
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&id, &uid, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt,
		&t.CreatedByIP, &revokedAt, &t.RevokedByIP, &t.ReplacedBy,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	t.ID = idx.ID(id)
	t.UserID = idx.ID(uid)
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked,
			created_at, created_by_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.UserID.String(), t.TokenHash, t.ExpiresAt, t.Revoked,
		t.CreatedAt, t.CreatedByIP,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash)
	t, err := scanRefreshToken(row)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) GetRefreshTokenWithUser(ctx context.Context, hash string) (domain.RefreshToken, domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT t.id, t.user_id, t.token_hash, t.expires_at, t.revoked, t.created_at,
			t.created_by_ip, t.revoked_at, t.revoked_by_ip, t.replaced_by,
			u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name,
			u.email_verified, u.active, u.created_at, u.updated_at, u.deleted_at
		FROM refresh_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = ? AND u.deleted_at IS NULL`,
		hash)

	var (
		t          domain.RefreshToken
		u          domain.User
		tid, tuid  string
		uid        string
		tRevokedAt sql.NullTime
		uDeletedAt sql.NullTime
	)
	err := row.Scan(
		&tid, &tuid, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt,
		&t.CreatedByIP, &tRevokedAt, &t.RevokedByIP, &t.ReplacedBy,
		&uid, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.EmailVerified, &u.Active, &u.CreatedAt, &u.UpdatedAt, &uDeletedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, domain.User{}, mapNotFound(err)
	}

	t.ID = idx.ID(tid)
	t.UserID = idx.ID(tuid)
	if tRevokedAt.Valid {
		at := tRevokedAt.Time
		t.RevokedAt = &at
	}
	u.ID = idx.ID(uid)
	if uDeletedAt.Valid {
		at := uDeletedAt.Time
		u.DeletedAt = &at
	}
	return t, u, nil
}

func (r *refreshTokensRepo) ListActiveByUser(ctx context.Context, userID idx.ID, now time.Time) ([]domain.RefreshToken, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		ORDER BY id ASC`,
		userID.String(), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkRotated revokes the row and records its successor, but only while the
// row is still active. Rows-affected tells concurrent rotations apart: the
// single winner sees 1, everyone else 0.
func (r *refreshTokensRepo) MarkRotated(ctx context.Context, hash string, stamp store.RotationStamp) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?, revoked_by_ip = ?, replaced_by = ?
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		stamp.Now, stamp.ByIP, stamp.ReplacedBy, hash, stamp.Now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, hash string, stamp store.RotationStamp) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?, revoked_by_ip = ?
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		stamp.Now, stamp.ByIP, hash, stamp.Now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, userID idx.ID, stamp store.RotationStamp) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?, revoked_by_ip = ?
		WHERE user_id = ? AND revoked = 0 AND expires_at > ?`,
		stamp.Now, stamp.ByIP, userID.String(), stamp.Now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
