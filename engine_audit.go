package authcore

import (
	"context"
	"errors"

	"github.com/pennyledger/authcore/store"
)

// The bridge between engine flows and the durable audit trail. Every write
// here is best-effort: a failed append must never fail the user-facing
// operation, so errors are swallowed and surfaced only through
// MetricSwallowedWrites. Metadata goes through the typed store.EventMetadata
// builders, which is what keeps secrets and raw tokens out of the trail.

func (e *Engine) appendLoginHistory(ctx context.Context, userID, email string, success bool, deviceInfo, location string) {
	if e.history == nil {
		return
	}
	rec := &store.LoginHistory{
		UserID:     userID,
		Email:      email,
		Success:    success,
		DeviceInfo: deviceInfo,
		Location:   location,
		Timestamp:  e.now(),
	}
	if err := e.history.Append(ctx, rec); err != nil {
		e.metricInc(MetricSwallowedWrites)
	}
}

// recordEvent writes one security-log row and mirrors it to the async audit
// dispatcher.
func (e *Engine) recordEvent(ctx context.Context, userID string, eventType store.EventType, description string, meta store.EventMetadata) {
	at := e.now()

	if e.seclog != nil {
		rec := &store.SecurityLog{
			UserID:      userID,
			EventType:   eventType,
			Description: description,
			Metadata:    meta,
			Timestamp:   at,
		}
		if err := e.seclog.Append(ctx, rec); err != nil {
			e.metricInc(MetricSwallowedWrites)
		}
	}

	e.emitAudit(ctx, AuditEvent{
		Timestamp:  at,
		EventType:  string(eventType),
		UserID:     userID,
		SessionID:  meta.SessionID,
		DeviceInfo: meta.DeviceInfo,
		Location:   meta.Location,
		Success:    true,
		Reason:     meta.Reason,
		Count:      meta.Count,
	})
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	// Dispatcher is nil-safe and drops when disabled.
	e.audit.Emit(ctx, event)
}

// notify creates one user-facing notification. excludeSessionID keeps the
// acting session from seeing its own action as unread noise.
func (e *Engine) notify(ctx context.Context, userID string, typ store.EventType, message, deviceInfo, location, excludeSessionID string) {
	if e.notifs == nil {
		return
	}
	rec := &store.Notification{
		UserID:           userID,
		Type:             typ,
		Message:          message,
		DeviceInfo:       deviceInfo,
		Location:         location,
		ExcludeSessionID: excludeSessionID,
		CreatedAt:        e.now(),
	}
	if err := e.notifs.Create(ctx, rec); err != nil {
		e.metricInc(MetricSwallowedWrites)
	}
}

// Notifications lists the user's unread notifications as seen from
// viewingSessionID; notifications excluding that session are filtered out by
// the store query.
func (e *Engine) Notifications(ctx context.Context, userID, viewingSessionID string) ([]*Notification, error) {
	if e == nil || e.notifs == nil {
		return nil, ErrEngineNotReady
	}
	out, err := e.notifs.ListUnread(ctx, userID, viewingSessionID)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}

// MarkNotificationRead flips a notification read and starts its 24h expiry.
func (e *Engine) MarkNotificationRead(ctx context.Context, notificationID string) error {
	if e == nil || e.notifs == nil {
		return ErrEngineNotReady
	}
	if err := e.notifs.MarkRead(ctx, notificationID, e.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return wrapUnavailable(err)
	}
	return nil
}

// SecurityEvents lists the user's recent security-log rows, newest first.
func (e *Engine) SecurityEvents(ctx context.Context, userID string, limit int) ([]*SecurityLog, error) {
	if e == nil || e.seclog == nil {
		return nil, ErrEngineNotReady
	}
	out, err := e.seclog.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}

// LoginAttempts lists the user's recent login history rows, newest first.
func (e *Engine) LoginAttempts(ctx context.Context, userID string, limit int) ([]*LoginHistory, error) {
	if e == nil || e.history == nil {
		return nil, ErrEngineNotReady
	}
	out, err := e.history.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}
