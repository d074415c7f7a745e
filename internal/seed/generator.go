package seed

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/dashboard-api/internal/domain/model"
)

var authMethods = []string{"password", "github", "google", "magic_link"} //nolint:gochecknoglobals // read-only

// Generate builds cfg.NumEvents events ending at now. Every user signs up
// before any of their other events, and ids are derived from cfg.Seed so a
// rerun with the same seed produces duplicates only.
func Generate(cfg *Config, now time.Time) []model.UserEvent {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // synthetic data
	now = now.UTC().Truncate(time.Second)
	start := now.AddDate(0, 0, -cfg.Days).Add(time.Second)
	span := now.Sub(start)

	signedUp := make(map[[2]int64]time.Time)
	events := make([]model.UserEvent, 0, cfg.NumEvents)
	for i := range cfg.NumEvents {
		deployment := int64(rng.IntN(cfg.Deployments)) + 1
		user := int64(rng.IntN(cfg.Users)) + 1
		at := start.Add(time.Duration(rng.Int64N(int64(span))))

		e := model.UserEvent{
			EventID:      eventID(cfg.Seed, i),
			DeploymentID: deployment,
			UserID:       model.Int64(user),
			IPAddress:    fmt.Sprintf("10.%d.%d.%d", deployment%256, user/256%256, user%256),
		}

		key := [2]int64{deployment, user}
		joined, ok := signedUp[key]
		switch {
		case !ok:
			e.Type = model.EventSignup
			e.UserName = fmt.Sprintf("User %d-%d", deployment, user)
			e.UserEmail = fmt.Sprintf("user%d@deployment%d.example.com", user, deployment)
			e.AuthMethod = authMethods[rng.IntN(len(authMethods))]
			signedUp[key] = at
		default:
			e.Type = pickFollowUp(rng)
			if e.Type == model.EventSignin {
				e.AuthMethod = authMethods[rng.IntN(len(authMethods))]
			}
			if at.Before(joined) {
				at = joined.Add(time.Duration(rng.Int64N(int64(now.Sub(joined)) + 1)))
			}
		}
		e.Timestamp = at
		events = append(events, e)
	}
	return events
}

// pickFollowUp weights sign-ins over creations.
func pickFollowUp(rng *rand.Rand) model.EventType {
	switch n := rng.IntN(10); {
	case n < 7:
		return model.EventSignin
	case n < 9:
		return model.EventWorkspaceCreated
	default:
		return model.EventOrganizationCreated
	}
}

func eventID(seed uint64, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "dashboard-seed/%d/%d", seed, i)).String()
}

// ToWire converts e to the request body of POST /events.
func ToWire(e model.UserEvent) Event { //nolint:gocritic // events are values
	return Event{
		EventID:      e.EventID,
		DeploymentID: e.DeploymentID,
		UserID:       e.UserID,
		EventType:    string(e.Type),
		UserName:     e.UserName,
		UserEmail:    e.UserEmail,
		AuthMethod:   e.AuthMethod,
		IPAddress:    e.IPAddress,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
