// Package service wires deduplication, the ingest queue, the recorder
// workers and the event store behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	eventqueue "github.com/okian/dashboard-api/internal/adapters/mq/queue"
	workerpool "github.com/okian/dashboard-api/internal/adapters/mq/worker"
	"github.com/okian/dashboard-api/internal/adapters/repository"
	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/dedupe"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/logger"
	"github.com/okian/dashboard-api/pkg/metrics"
)

// Defaults applied by New.
const (
	DefaultQueueSize        = 10_000
	DefaultDedupeSize       = 100_000
	DefaultRangeDays        = 30
	DefaultRecentSignups    = 10
	DefaultMaxRecentSignups = 100
)

// SubmitResult describes the outcome of an accepted submission.
type SubmitResult struct {
	EventID   string
	Duplicate bool
}

// Status is a point-in-time view of the service for monitoring.
type Status struct {
	Started       bool  `json:"started"`
	WorkerCount   int   `json:"worker_count"`
	QueueLength   int   `json:"queue_length"`
	QueueCapacity int   `json:"queue_capacity"`
	DedupeEntries int64 `json:"dedupe_entries"`
	StoredEvents  int   `json:"stored_events"`
}

// Service implements the API dependencies for the dashboard.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	stopPool   context.CancelFunc

	// pending holds ids that are queued but not yet recorded.
	pendingMu sync.Mutex
	pending   map[string]struct{}

	workerCount      int
	queueSize        int
	dedupeSize       int
	defaultRangeDays int
	maxRecentSignups int
	clock            clock.Clock

	started bool
	// stopped is set by Stop. The store is closed by then, so Start refuses
	// to run again.
	stopped bool

	logger logger.Logger
}

// New constructs a Service. Call Start before use.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        DefaultQueueSize,
		dedupeSize:       DefaultDedupeSize,
		defaultRangeDays: DefaultRangeDays,
		maxRecentSignups: DefaultMaxRecentSignups,
		clock:            clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start initializes the queue, the deduper and the worker pool, and opens a
// memory store when none was configured. A stopped Service cannot be started
// again and returns ErrStopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.logger.Info(ctx, "using memory store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pending = make(map[string]struct{})

	// Workers outlive the caller's context so Stop can drain the queue.
	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopPool = cancel
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.store,
		workerpool.WithFailureHook(s.onRecordFailure),
		workerpool.WithSuccessHook(s.onRecorded),
	)
	s.workerPool.Start(poolCtx)

	s.started = true
	s.logger.Info(ctx, "dashboard service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Stop closes the queue, waits for the workers to drain it within ctx, then
// closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping dashboard service")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.stopPool()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "dashboard service stopped")
	return errors.Join(errs...)
}

// Submit validates e, fills its defaults and queues it for recording.
// A repeated event id is not queued again. It is reported as a duplicate once
// the first copy is recorded, and as accepted while that copy is still queued.
func (s *Service) Submit(ctx context.Context, e model.UserEvent) (SubmitResult, error) { //nolint:gocritic // events travel by value
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return SubmitResult{}, ErrNotStarted
	}

	e.EventID = strings.TrimSpace(e.EventID)
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		metrics.RecordEventRejected("invalid")
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	seen, queued := s.claim(ctx, e.EventID)
	if queued {
		s.logger.Debug(ctx, "event already queued", logger.String("event_id", e.EventID))
		return SubmitResult{EventID: e.EventID}, nil
	}
	if seen {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event", logger.String("event_id", e.EventID))
		return SubmitResult{EventID: e.EventID, Duplicate: true}, nil
	}

	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		s.release(ctx, e.EventID)
		if errors.Is(err, eventqueue.ErrFull) {
			metrics.RecordEventRejected("backpressure")
			return SubmitResult{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		metrics.RecordEventRejected("enqueue")
		return SubmitResult{}, err
	}

	metrics.RecordEventIngested(string(e.Type))
	return SubmitResult{EventID: e.EventID}, nil
}

func (s *Service) onRecordFailure(ctx context.Context, e model.UserEvent, _ error) { //nolint:gocritic // events travel by value
	// Let the client retry an event the store rejected.
	s.release(ctx, e.EventID)
}

func (s *Service) onRecorded(_ context.Context, e model.UserEvent) { //nolint:gocritic // events travel by value
	s.pendingMu.Lock()
	delete(s.pending, e.EventID)
	s.pendingMu.Unlock()
}

// claim marks id as seen. seen reports an earlier submission and queued
// reports that it is still waiting to be recorded. A first submission is
// marked as queued.
func (s *Service) claim(ctx context.Context, id string) (seen, queued bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.deduper.SeenAndRecord(ctx, id) {
		_, queued = s.pending[id]
		return true, queued
	}
	s.pending[id] = struct{}{}
	return false, false
}

// release forgets id so it can be submitted again.
func (s *Service) release(ctx context.Context, id string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, id)
	s.deduper.Unrecord(ctx, id)
}

// ResolveRange fills absent bounds: to defaults to now and from to the
// configured number of days before to.
func (s *Service) ResolveRange(from, to time.Time) (analytics.Range, error) {
	if to.IsZero() {
		to = s.clock.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -s.defaultRangeDays)
	}
	r := analytics.Range{From: from.UTC(), To: to.UTC()}
	if err := r.Validate(); err != nil {
		return analytics.Range{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return r, nil
}

// Stats returns the period summary for a deployment.
func (s *Service) Stats(ctx context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error) {
	store, err := s.readStore()
	if err != nil {
		return analytics.Stats{}, err
	}
	return store.Stats(ctx, deploymentID, r)
}

// RecentSignups returns the newest signups of a deployment. A zero limit
// selects the default.
func (s *Service) RecentSignups(ctx context.Context, deploymentID int64, limit int) ([]analytics.RecentSignup, error) {
	if limit == 0 {
		limit = min(DefaultRecentSignups, s.maxRecentSignups)
	}
	if limit < 0 || limit > s.maxRecentSignups {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, s.maxRecentSignups)
	}
	store, err := s.readStore()
	if err != nil {
		return nil, err
	}
	return store.RecentSignups(ctx, deploymentID, limit)
}

// DailyCounts returns a zero-filled daily series of events of type t.
func (s *Service) DailyCounts(ctx context.Context, deploymentID int64, t model.EventType, r analytics.Range) ([]analytics.DailyCount, error) {
	if r.Days() > analytics.MaxDailyRange {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, analytics.ErrRangeTooLarge)
	}
	store, err := s.readStore()
	if err != nil {
		return nil, err
	}
	return store.DailyCounts(ctx, deploymentID, t, r)
}

// Status returns service statistics for monitoring.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Started: s.started}
	if !s.started {
		return st
	}
	st.WorkerCount = s.workerPool.Size()
	st.QueueLength = s.eventQueue.Len()
	st.QueueCapacity = s.eventQueue.Cap()
	st.DedupeEntries = s.deduper.Size()
	if n, err := s.store.Count(ctx); err == nil {
		st.StoredEvents = n
	} else {
		s.logger.Warn(ctx, "count stored events", logger.Error(err))
	}

	metrics.UpdateQueueSize(st.QueueLength)
	metrics.UpdateTrackedEvents(st.StoredEvents)
	return st
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) readStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}
