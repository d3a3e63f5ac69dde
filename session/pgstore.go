package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, token, device_info, location, remember_me,
	is_active, expires_at, created_at, last_activity_at, revoked_at, revoked_reason`

// PGStore implements Store on PostgreSQL. Sessions are never hard-deleted
// here; retention is a datastore-level background job.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL session store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token, device_info, location, remember_me,
			is_active, expires_at, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sess.ID, sess.UserID, sess.Token, sess.DeviceInfo,
		pgtype.Text{String: sess.Location, Valid: sess.Location != ""},
		sess.RememberMe, sess.IsActive,
		sess.ExpiresAt.UTC(), sess.CreatedAt.UTC(), sess.LastActivityAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (s *PGStore) FindActiveByToken(ctx context.Context, token string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token = $1 AND is_active AND expires_at > now()
	`, token)
	return scanSession(row)
}

func (s *PGStore) ListActiveByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *PGStore) RotateToken(ctx context.Context, id, newToken string, at time.Time) error {
	// expires_at is deliberately untouched: rotation refreshes the token
	// identity on the same row, never the session lifetime.
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET token = $2, last_activity_at = $3 WHERE id = $1
	`, id, newToken, at.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) TouchActivity(ctx context.Context, id string, at time.Time) error {
	// The WHERE clause enforces the once-per-interval rate limit in a single
	// statement; a skipped touch is indistinguishable from a successful one.
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET last_activity_at = $2
		WHERE id = $1 AND last_activity_at <= $3
	`, id, at.UTC(), at.Add(-TouchInterval).UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PGStore) Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET is_active = false, revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND is_active
	`, id, at.UTC(), reason)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) DeactivateAllForUser(ctx context.Context, userID, keepID, reason string, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET is_active = false, revoked_at = $3, revoked_reason = $4
		WHERE user_id = $1 AND is_active AND id <> $2
	`, userID, keepID, at.UTC(), reason)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess      Session
		location  pgtype.Text
		revokedAt pgtype.Timestamptz
		reason    pgtype.Text
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.DeviceInfo, &location,
		&sess.RememberMe, &sess.IsActive, &sess.ExpiresAt, &sess.CreatedAt,
		&sess.LastActivityAt, &revokedAt, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sess.Location = location.String
	sess.RevokedAt = revokedAt.Time
	sess.RevokedReason = reason.String
	return &sess, nil
}

var _ Store = (*PGStore)(nil)
