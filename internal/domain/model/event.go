// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// EventType classifies a user lifecycle event.
type EventType string

// Known event types.
const (
	EventSignup              EventType = "signup"
	EventSignin              EventType = "signin"
	EventOrganizationCreated EventType = "organization_created"
	EventWorkspaceCreated    EventType = "workspace_created"
)

// EventTypes lists every known event type in a stable order.
var EventTypes = []EventType{EventSignup, EventSignin, EventOrganizationCreated, EventWorkspaceCreated} //nolint:gochecknoglobals // read-only

// Validation errors.
var (
	ErrUnknownEventType  = errors.New("unknown event_type")
	ErrMissingEventID    = errors.New("missing event_id")
	ErrInvalidDeployment = errors.New("deployment_id must be a positive integer")
	ErrInvalidUserID     = errors.New("user_id must be a positive integer")
	ErrMissingTimestamp  = errors.New("missing timestamp")
	ErrInvalidIP         = errors.New("invalid ip_address")
)

// ParseEventType maps s onto a known EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range EventTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// UserEvent is a single lifecycle event for a user of a deployment.
// Optional string fields are empty when absent.
type UserEvent struct {
	EventID      string
	DeploymentID int64
	UserID       *int64
	Type         EventType
	UserName     string
	UserEmail    string
	AuthMethod   string
	IPAddress    string
	Timestamp    time.Time
}

// HasUser reports whether the event carries a user id.
func (e UserEvent) HasUser() bool { //nolint:gocritic // value receiver keeps events immutable
	return e.UserID != nil
}

// Validate checks the invariants every stored event must satisfy.
func (e UserEvent) Validate() error { //nolint:gocritic // value receiver keeps events immutable
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return ErrMissingEventID
	case e.DeploymentID <= 0:
		return ErrInvalidDeployment
	case e.UserID != nil && *e.UserID <= 0:
		return ErrInvalidUserID
	case e.Timestamp.IsZero():
		return ErrMissingTimestamp
	}
	if _, err := ParseEventType(string(e.Type)); err != nil {
		return err
	}
	if e.IPAddress != "" && net.ParseIP(e.IPAddress) == nil {
		return ErrInvalidIP
	}
	return nil
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
