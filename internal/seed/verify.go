package seed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/logger"
)

const pollInterval = 250 * time.Millisecond

// Expected computes the stats each deployment should serve over r once
// every event is recorded.
func Expected(events []model.UserEvent, r analytics.Range) map[int64]analytics.Stats {
	byDeployment := make(map[int64][]model.UserEvent)
	for _, e := range events {
		byDeployment[e.DeploymentID] = append(byDeployment[e.DeploymentID], e)
	}
	out := make(map[int64]analytics.Stats, len(byDeployment))
	for id, evs := range byDeployment {
		out[id] = analytics.Aggregate(evs, r)
	}
	return out
}

// Verify polls the served stats until they equal want or settle elapses.
// It returns the number of matching deployments and an ErrMismatch error
// naming every deployment that never matched.
func Verify(ctx context.Context, client *Client, want map[int64]analytics.Stats, r analytics.Range, settle time.Duration) (int, error) {
	log := logger.Named("seed")
	ids := make([]int64, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	deadline := time.Now().Add(settle)
	pending := ids
	for {
		var mismatches []error
		var next []int64
		for _, id := range pending {
			got, err := client.Stats(ctx, id, r)
			if err != nil {
				return len(ids) - len(pending), err
			}
			if got != want[id] {
				next = append(next, id)
				mismatches = append(mismatches, fmt.Errorf("deployment %d: got %+v, want %+v", id, got, want[id]))
			}
		}
		pending = next
		if len(pending) == 0 {
			log.Info(ctx, "served stats match", logger.Int("deployments", len(ids)))
			return len(ids), nil
		}
		if time.Now().After(deadline) {
			return len(ids) - len(pending), errors.Join(append([]error{ErrMismatch}, mismatches...)...)
		}

		select {
		case <-ctx.Done():
			return len(ids) - len(pending), ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
