// Package worker drains the ingest queue into the event store.
package worker

import (
	"context"

	"github.com/okian/dashboard-api/pkg/logger"
)

// FailureHook is called when an event could not be recorded.
type FailureHook func(ctx context.Context, e Event, err error)

// SuccessHook is called after an event was stored or found already stored.
type SuccessHook func(ctx context.Context, e Event)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFailureHook registers fn to run after a failed Record.
func WithFailureHook(fn FailureHook) Option {
	return func(w *InMemoryWorker) {
		w.onFailure = fn
	}
}

// WithSuccessHook registers fn to run after a successful Record.
func WithSuccessHook(fn SuccessHook) Option {
	return func(w *InMemoryWorker) {
		w.onSuccess = fn
	}
}
