package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/logger"
)

const directoryPermission = 0o750

// Run executes a complete seed: health check, generation, submission and
// verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Named("seed")
	stats := &Stats{StartTime: time.Now()}
	log.Info(ctx, "starting seed run",
		logger.String("url", cfg.BaseURL),
		logger.Int("events", cfg.NumEvents),
		logger.Int("deployments", cfg.Deployments),
		logger.Int("workers", cfg.Workers),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, err
	}

	now := time.Now().UTC()
	events := Generate(cfg, now)
	stats.EventsGenerated = len(events)
	if cfg.OutputFile != "" {
		if err := saveEvents(cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events", logger.Error(err))
		} else {
			log.Info(ctx, "events saved", logger.String("file", cfg.OutputFile))
		}
	}

	if err := Submit(ctx, cfg, client, events, stats); err != nil {
		return stats, fmt.Errorf("submit events: %w", err)
	}

	if !cfg.SkipVerify {
		if stats.EventsRejected > 0 {
			log.Warn(ctx, "some events were rejected; expectations will not match", logger.Int64("rejected", stats.EventsRejected))
		}
		r := analytics.Range{From: now.AddDate(0, 0, -cfg.Days), To: now}
		matched, err := Verify(ctx, client, Expected(events, r), r, cfg.Settle)
		stats.DeploymentsMatch = matched
		if err != nil {
			return stats, err
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "seed run completed",
		logger.Int("generated", stats.EventsGenerated),
		logger.Int64("accepted", stats.EventsAccepted),
		logger.Int64("duplicate", stats.EventsDuplicate),
		logger.Int("deployments_matched", stats.DeploymentsMatch),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func saveEvents(path string, events []model.UserEvent) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	wire := make([]Event, len(events))
	for i, e := range events {
		wire[i] = ToWire(e)
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
