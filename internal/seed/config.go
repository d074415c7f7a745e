// Package seed generates synthetic user events, submits them to a running
// dashboard-api and checks the served stats against local expectations.
package seed

import (
	"errors"
	"time"
)

// Defaults for Config.
const (
	DefaultBaseURL       = "http://localhost:3000"
	DefaultEvents        = 5_000
	DefaultDeployments   = 3
	DefaultUsers         = 500
	DefaultDays          = 30
	DefaultTimeout       = 10 * time.Second
	DefaultSettleTimeout = 30 * time.Second
)

// Configuration errors.
var (
	ErrInvalidConfig = errors.New("invalid seed config")
	ErrUnhealthy     = errors.New("service is not healthy")
	ErrMismatch      = errors.New("served stats do not match expectations")
)

// Config holds configuration for a seed run.
type Config struct {
	BaseURL     string        // Base URL of the service
	NumEvents   int           // Number of events to generate
	Deployments int           // Deployments ids 1..Deployments receive events
	Users       int           // Distinct users per deployment
	Days        int           // Events are spread over the last Days days
	Workers     int           // Concurrent submitters
	Seed        uint64        // Generator seed; equal seeds give equal events
	Timeout     time.Duration // HTTP request timeout
	Settle      time.Duration // How long to wait for served stats to match
	OutputFile  string        // Optional JSON dump of the generated events
	SkipVerify  bool
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("url must not be empty"))
	case c.NumEvents <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("events must be positive"))
	case c.Deployments <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("deployments must be positive"))
	case c.Users <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("users must be positive"))
	case c.Days <= 0 || c.Days > 366:
		return errors.Join(ErrInvalidConfig, errors.New("days must be between 1 and 366"))
	case c.Workers <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("workers must be positive"))
	}
	return nil
}

// Event is the wire form of POST /events.
type Event struct {
	EventID      string `json:"event_id"`
	DeploymentID int64  `json:"deployment_id"`
	UserID       *int64 `json:"user_id,omitempty"`
	EventType    string `json:"event_type"`
	UserName     string `json:"user_name,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
	AuthMethod   string `json:"auth_method,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// AckResponse is the body of a successful submission.
type AckResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated  int
	EventsAccepted   int64
	EventsDuplicate  int64
	EventsRejected   int64
	EventsFailed     int64
	DeploymentsMatch int
	StartTime        time.Time
	Duration         time.Duration
}
