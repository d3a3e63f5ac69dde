package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGUsers is a PostgreSQL UserStore over the users table. Only the security
// columns are touched here.
type PGUsers struct {
	pool *pgxpool.Pool
}

// NewPGUsers returns a PGUsers backed by pool.
func NewPGUsers(pool *pgxpool.Pool) *PGUsers {
	return &PGUsers{pool: pool}
}

const userColumns = `id, email, password_hash, role, email_verified,
	mfa_enabled, mfa_secret, backup_code_hashes,
	failed_login_attempts, locked_until, last_login_at`

func (s *PGUsers) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *PGUsers) GetByID(ctx context.Context, id string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*UserRecord, error) {
	var (
		u           UserRecord
		lockedUntil pgtype.Timestamptz
		lastLogin   pgtype.Timestamptz
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.EmailVerified,
		&u.MFAEnabled, &u.MFASecret, &u.BackupCodeHashes,
		&u.FailedLoginAttempts, &lockedUntil, &lastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapPG(err)
	}
	if lockedUntil.Valid {
		u.LockedUntil = lockedUntil.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	return &u, nil
}

func (s *PGUsers) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
}

func (s *PGUsers) SetMFASecret(ctx context.Context, id string, secret []byte) error {
	return s.exec(ctx,
		`UPDATE users SET mfa_secret = $2, mfa_enabled = FALSE WHERE id = $1`, id, secret)
}

func (s *PGUsers) EnableMFA(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE users SET mfa_enabled = TRUE WHERE id = $1`, id)
}

func (s *PGUsers) DisableMFA(ctx context.Context, id string) error {
	return s.exec(ctx,
		`UPDATE users SET mfa_enabled = FALSE, mfa_secret = NULL, backup_code_hashes = '{}' WHERE id = $1`, id)
}

func (s *PGUsers) ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error {
	return s.exec(ctx, `UPDATE users SET backup_code_hashes = $2 WHERE id = $1`, id, hashes)
}

func (s *PGUsers) RecordLoginFailure(ctx context.Context, id string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET failed_login_attempts = failed_login_attempts + 1
		 WHERE id = $1 RETURNING failed_login_attempts`, id).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, wrapPG(err)
	}
	return n, nil
}

func (s *PGUsers) ResetLoginFailures(ctx context.Context, id string, lastLogin time.Time) error {
	return s.exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2
		 WHERE id = $1`, id, lastLogin)
}

func (s *PGUsers) LockUntil(ctx context.Context, id string, until time.Time) error {
	return s.exec(ctx, `UPDATE users SET locked_until = $2 WHERE id = $1`, id, until)
}

func (s *PGUsers) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return wrapPG(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PGLoginHistory is a PostgreSQL LoginHistoryStore. Rows age out through a
// scheduled delete on timestamp older than AuditRetention.
type PGLoginHistory struct {
	pool *pgxpool.Pool
}

// NewPGLoginHistory returns a PGLoginHistory backed by pool.
func NewPGLoginHistory(pool *pgxpool.Pool) *PGLoginHistory {
	return &PGLoginHistory{pool: pool}
}

func (s *PGLoginHistory) Append(ctx context.Context, rec *LoginHistory) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO login_history (id, user_id, email, success, device_info, location, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.Email, rec.Success, rec.DeviceInfo, rec.Location, rec.Timestamp)
	if err != nil {
		return wrapPG(err)
	}
	return nil
}

func (s *PGLoginHistory) ListByUser(ctx context.Context, userID string, limit int) ([]*LoginHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, email, success, device_info, location, ts
		 FROM login_history WHERE user_id = $1 ORDER BY ts DESC LIMIT $2`,
		userID, listLimit(limit))
	if err != nil {
		return nil, wrapPG(err)
	}
	defer rows.Close()

	var out []*LoginHistory
	for rows.Next() {
		var r LoginHistory
		if err := rows.Scan(&r.ID, &r.UserID, &r.Email, &r.Success,
			&r.DeviceInfo, &r.Location, &r.Timestamp); err != nil {
			return nil, wrapPG(err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPG(err)
	}
	return out, nil
}

// PGSecurityLog is a PostgreSQL SecurityLogStore. Metadata is stored as jsonb.
type PGSecurityLog struct {
	pool *pgxpool.Pool
}

// NewPGSecurityLog returns a PGSecurityLog backed by pool.
func NewPGSecurityLog(pool *pgxpool.Pool) *PGSecurityLog {
	return &PGSecurityLog{pool: pool}
}

func (s *PGSecurityLog) Append(ctx context.Context, rec *SecurityLog) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("security log metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO security_logs (id, user_id, event_type, description, metadata, ts)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, string(rec.EventType), rec.Description, meta, rec.Timestamp)
	if err != nil {
		return wrapPG(err)
	}
	return nil
}

func (s *PGSecurityLog) ListByUser(ctx context.Context, userID string, limit int) ([]*SecurityLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, event_type, description, metadata, ts
		 FROM security_logs WHERE user_id = $1 ORDER BY ts DESC LIMIT $2`,
		userID, listLimit(limit))
	if err != nil {
		return nil, wrapPG(err)
	}
	defer rows.Close()

	var out []*SecurityLog
	for rows.Next() {
		var (
			r    SecurityLog
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.EventType, &r.Description, &meta, &r.Timestamp); err != nil {
			return nil, wrapPG(err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("security log metadata: %w", err)
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPG(err)
	}
	return out, nil
}

// PGNotifications is a PostgreSQL NotificationStore.
type PGNotifications struct {
	pool *pgxpool.Pool
}

// NewPGNotifications returns a PGNotifications backed by pool.
func NewPGNotifications(pool *pgxpool.Pool) *PGNotifications {
	return &PGNotifications{pool: pool}
}

func (s *PGNotifications) Create(ctx context.Context, rec *Notification) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	exclude := pgtype.Text{String: rec.ExcludeSessionID, Valid: rec.ExcludeSessionID != ""}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications
		   (id, user_id, type, message, device_info, location, exclude_session_id, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`,
		rec.ID, rec.UserID, string(rec.Type), rec.Message,
		rec.DeviceInfo, rec.Location, exclude, rec.CreatedAt)
	if err != nil {
		return wrapPG(err)
	}
	return nil
}

func (s *PGNotifications) ListUnread(ctx context.Context, userID, viewingSessionID string) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, message, device_info, location, exclude_session_id, created_at
		 FROM notifications
		 WHERE user_id = $1 AND NOT read
		   AND (exclude_session_id IS NULL OR exclude_session_id <> $2)
		 ORDER BY created_at DESC`,
		userID, viewingSessionID)
	if err != nil {
		return nil, wrapPG(err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var (
			r       Notification
			exclude pgtype.Text
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Message,
			&r.DeviceInfo, &r.Location, &exclude, &r.CreatedAt); err != nil {
			return nil, wrapPG(err)
		}
		r.ExcludeSessionID = exclude.String
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPG(err)
	}
	return out, nil
}

func (s *PGNotifications) MarkRead(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE, read_at = $2, expires_at = $3 WHERE id = $1`,
		id, at, at.Add(NotificationReadTTL))
	if err != nil {
		return wrapPG(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func wrapPG(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
