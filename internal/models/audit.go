package models

import "time"

type AuditEvent string

const (
	EventUserRegistered  AuditEvent = "user.registered"
	EventUserLogin       AuditEvent = "user.login"
	EventUserLoginFailed AuditEvent = "user.login_failed"
	EventTokenRefreshed  AuditEvent = "token.refreshed"
	EventUserUpdated     AuditEvent = "user.updated"
	EventUserDeactivated AuditEvent = "user.deactivated"
	EventUserActivated   AuditEvent = "user.activated"
	EventUserDeleted     AuditEvent = "user.deleted"
)

type AuditEntry struct {
	ID         string
	GymID      string
	UserID     string
	Event      AuditEvent
	OccurredAt time.Time
	Metadata   map[string]string
}
