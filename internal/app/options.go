package service

import (
	"github.com/benbjohnson/clock"

	"github.com/okian/dashboard-api/internal/adapters/repository"
	"github.com/okian/dashboard-api/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recorder goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the ingest queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache. Zero disables the bound.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the event store. Without it Start opens a memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock replaces the wall clock used for default timestamps and ranges.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDefaultRangeDays sets how far back an open-ended range reaches.
func WithDefaultRangeDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.defaultRangeDays = days
		}
	}
}

// WithMaxRecentSignups caps the recent-signups limit.
func WithMaxRecentSignups(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxRecentSignups = limit
		}
	}
}
