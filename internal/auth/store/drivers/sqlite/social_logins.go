package sqlite

import (
	"context"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/pkg/idx"
)

type socialLoginsRepo struct {
	q querier
}

const socialColumns = `id, user_id, provider, provider_key, provider_data, created_at`

func scanSocialLogin(row rowScanner) (domain.SocialLogin, error) {
	var (
		l       domain.SocialLogin
		id, uid string
	)
	err := row.Scan(&id, &uid, &l.Provider, &l.ProviderKey, &l.ProviderData, &l.CreatedAt)
	if err != nil {
		return domain.SocialLogin{}, err
	}
	l.ID = idx.ID(id)
	l.UserID = idx.ID(uid)
	return l, nil
}

func (r *socialLoginsRepo) CreateSocialLogin(ctx context.Context, l domain.SocialLogin) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO social_logins (id, user_id, provider, provider_key, provider_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.UserID.String(), l.Provider, l.ProviderKey, l.ProviderData, l.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *socialLoginsRepo) GetByProviderKey(ctx context.Context, provider, providerKey string) (domain.SocialLogin, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+socialColumns+` FROM social_logins WHERE provider = ? AND provider_key = ?`,
		provider, providerKey)
	l, err := scanSocialLogin(row)
	if err != nil {
		return domain.SocialLogin{}, mapNotFound(err)
	}
	return l, nil
}

func (r *socialLoginsRepo) ListByUser(ctx context.Context, userID idx.ID) ([]domain.SocialLogin, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+socialColumns+` FROM social_logins WHERE user_id = ? ORDER BY id ASC`,
		userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SocialLogin
	for rows.Next() {
		l, err := scanSocialLogin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
