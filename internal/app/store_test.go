package service_test

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/dashboard-api/internal/adapters/repository"
	"github.com/okian/dashboard-api/internal/domain/model"
)

var errStoreDown = errors.New("store down")

// blockingStore holds every Record call until release is called. After that
// the next failures calls fail with errStoreDown.
type blockingStore struct {
	*repository.MemoryStore
	gate chan struct{}
	once sync.Once

	mu       sync.Mutex
	failures int
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		MemoryStore: repository.NewMemoryStore(context.Background()),
		gate:        make(chan struct{}),
	}
}

func (b *blockingStore) Record(ctx context.Context, e model.UserEvent) (bool, error) { //nolint:gocritic // test double
	select {
	case <-b.gate:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return false, errStoreDown
	}
	b.mu.Unlock()
	return b.MemoryStore.Record(ctx, e)
}

func (b *blockingStore) failNext(n int) {
	b.mu.Lock()
	b.failures = n
	b.mu.Unlock()
}

func (b *blockingStore) release() {
	b.once.Do(func() { close(b.gate) })
}
