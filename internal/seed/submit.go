package seed

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/logger"
)

// Submit posts events with cfg.Workers concurrent requests and records the
// outcomes in stats. The first transport error cancels the remaining work.
func Submit(ctx context.Context, cfg *Config, client *Client, events []model.UserEvent, stats *Stats) error {
	log := logger.Named("seed")
	log.Info(ctx, "submitting events", logger.Int("events", len(events)), logger.Int("workers", cfg.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, e := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := client.Submit(gctx, ToWire(e))
			if err != nil {
				atomic.AddInt64(&stats.EventsFailed, 1)
				return err
			}
			switch outcome {
			case OutcomeAccepted:
				atomic.AddInt64(&stats.EventsAccepted, 1)
			case OutcomeDuplicate:
				atomic.AddInt64(&stats.EventsDuplicate, 1)
			case OutcomeRejected:
				atomic.AddInt64(&stats.EventsRejected, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info(ctx, "event submission completed",
		logger.Int64("accepted", stats.EventsAccepted),
		logger.Int64("duplicate", stats.EventsDuplicate),
		logger.Int64("rejected", stats.EventsRejected),
	)
	return nil
}
