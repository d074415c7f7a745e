package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/metrics"
)

const defaultMetricsUpdateInterval = 5 * time.Second

// MemoryStore keeps events in process memory, grouped by deployment and
// ordered by timestamp.
type MemoryStore struct {
	mu           sync.RWMutex
	byDeployment map[int64][]model.UserEvent
	ids          map[string]struct{}
	closed       bool

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a MemoryStore. The metrics updater stops when
// ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byDeployment:          make(map[int64][]model.UserEvent),
		ids:                   make(map[string]struct{}),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.runMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) runMetricsUpdater(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.RLock()
			n := len(s.ids)
			s.mu.RUnlock()
			metrics.UpdateTrackedEvents(n)
		}
	}
}

// Close stops background work. Further calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	s.wg.Wait()
	return nil
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, e model.UserEvent) (bool, error) { //nolint:gocritic // events are values
	defer observe("record", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.ids[e.EventID]; ok {
		return false, nil
	}

	events := s.byDeployment[e.DeploymentID]
	i := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp.After(e.Timestamp)
	})
	events = append(events, model.UserEvent{})
	copy(events[i+1:], events[i:])
	events[i] = e
	s.byDeployment[e.DeploymentID] = events
	s.ids[e.EventID] = struct{}{}
	return true, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error) {
	defer observe("stats", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return analytics.Stats{}, ErrClosed
	}
	return analytics.Aggregate(s.byDeployment[deploymentID], r), nil
}

// RecentSignups implements Store.
func (s *MemoryStore) RecentSignups(_ context.Context, deploymentID int64, limit int) ([]analytics.RecentSignup, error) {
	defer observe("recent_signups", time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	// Events are timestamp ordered, so walk backwards.
	events := s.byDeployment[deploymentID]
	out := make([]analytics.RecentSignup, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if events[i].Type == model.EventSignup {
			out = append(out, analytics.ToRecentSignup(events[i]))
		}
	}
	return out, nil
}

// DailyCounts implements Store.
func (s *MemoryStore) DailyCounts(_ context.Context, deploymentID int64, t model.EventType, r analytics.Range) ([]analytics.DailyCount, error) {
	defer observe("daily_counts", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return analytics.DailyCounts(s.byDeployment[deploymentID], t, r), nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids), nil
}

func observe(query string, start time.Time) {
	metrics.RecordStoreQueryLatency(query, float64(time.Since(start).Microseconds())/1000)
}
