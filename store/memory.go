package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemUsers is an in-memory UserStore for tests and single-process setups.
type MemUsers struct {
	mu    sync.RWMutex
	users map[string]*UserRecord
}

// NewMemUsers returns an empty MemUsers.
func NewMemUsers() *MemUsers {
	return &MemUsers{users: make(map[string]*UserRecord)}
}

// Seed inserts or replaces a user record.
func (m *MemUsers) Seed(u *UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	cp.BackupCodeHashes = append([]string(nil), u.BackupCodeHashes...)
	cp.MFASecret = append([]byte(nil), u.MFASecret...)
	m.users[u.ID] = &cp
}

func (m *MemUsers) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemUsers) GetByID(_ context.Context, id string) (*UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *MemUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return m.update(id, func(u *UserRecord) {
		u.PasswordHash = hash
	})
}

func (m *MemUsers) SetMFASecret(_ context.Context, id string, secret []byte) error {
	return m.update(id, func(u *UserRecord) {
		u.MFASecret = append([]byte(nil), secret...)
		u.MFAEnabled = false
	})
}

func (m *MemUsers) EnableMFA(_ context.Context, id string) error {
	return m.update(id, func(u *UserRecord) {
		u.MFAEnabled = true
	})
}

func (m *MemUsers) DisableMFA(_ context.Context, id string) error {
	return m.update(id, func(u *UserRecord) {
		u.MFAEnabled = false
		u.MFASecret = nil
		u.BackupCodeHashes = nil
	})
}

func (m *MemUsers) ReplaceBackupCodes(_ context.Context, id string, hashes []string) error {
	return m.update(id, func(u *UserRecord) {
		u.BackupCodeHashes = append([]string(nil), hashes...)
	})
}

func (m *MemUsers) RecordLoginFailure(_ context.Context, id string) (int, error) {
	var n int
	err := m.update(id, func(u *UserRecord) {
		u.FailedLoginAttempts++
		n = u.FailedLoginAttempts
	})
	return n, err
}

func (m *MemUsers) ResetLoginFailures(_ context.Context, id string, lastLogin time.Time) error {
	return m.update(id, func(u *UserRecord) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = time.Time{}
		u.LastLoginAt = lastLogin
	})
}

func (m *MemUsers) LockUntil(_ context.Context, id string, until time.Time) error {
	return m.update(id, func(u *UserRecord) {
		u.LockedUntil = until
	})
}

func (m *MemUsers) update(id string, fn func(*UserRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}

func copyUser(u *UserRecord) *UserRecord {
	cp := *u
	cp.BackupCodeHashes = append([]string(nil), u.BackupCodeHashes...)
	cp.MFASecret = append([]byte(nil), u.MFASecret...)
	return &cp
}

// MemLoginHistory is an in-memory LoginHistoryStore.
type MemLoginHistory struct {
	mu   sync.RWMutex
	rows []*LoginHistory
}

// NewMemLoginHistory returns an empty MemLoginHistory.
func NewMemLoginHistory() *MemLoginHistory {
	return &MemLoginHistory{}
}

func (m *MemLoginHistory) Append(_ context.Context, rec *LoginHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MemLoginHistory) ListByUser(_ context.Context, userID string, limit int) ([]*LoginHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*LoginHistory
	for _, r := range m.rows {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemSecurityLog is an in-memory SecurityLogStore.
type MemSecurityLog struct {
	mu   sync.RWMutex
	rows []*SecurityLog
}

// NewMemSecurityLog returns an empty MemSecurityLog.
func NewMemSecurityLog() *MemSecurityLog {
	return &MemSecurityLog{}
}

func (m *MemSecurityLog) Append(_ context.Context, rec *SecurityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MemSecurityLog) ListByUser(_ context.Context, userID string, limit int) ([]*SecurityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SecurityLog
	for _, r := range m.rows {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemNotifications is an in-memory NotificationStore.
type MemNotifications struct {
	mu   sync.RWMutex
	rows map[string]*Notification
}

// NewMemNotifications returns an empty MemNotifications.
func NewMemNotifications() *MemNotifications {
	return &MemNotifications{rows: make(map[string]*Notification)}
}

func (m *MemNotifications) Create(_ context.Context, rec *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.rows[cp.ID] = &cp
	return nil
}

func (m *MemNotifications) ListUnread(_ context.Context, userID, viewingSessionID string) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Notification
	for _, r := range m.rows {
		if r.UserID != userID || r.Read {
			continue
		}
		if r.ExcludeSessionID != "" && r.ExcludeSessionID == viewingSessionID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemNotifications) MarkRead(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	r.Read = true
	r.ReadAt = at
	r.ExpiresAt = at.Add(NotificationReadTTL)
	return nil
}
