package store

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"flight_collector/internal/models"
)

// FallbackObserver is told each time the fallback store is used
type FallbackObserver interface {
	ObserveStoreFallback(op string)
}

// FallbackStore writes to a shared primary and degrades to process memory when the
// primary is unreachable. While degraded, other instances do not see this process's writes.
type FallbackStore struct {
	primary  Store
	memory   *MemoryStore
	observer FallbackObserver
	degraded atomic.Bool
}

func NewFallbackStore(primary Store, memory *MemoryStore, observer FallbackObserver) *FallbackStore {
	return &FallbackStore{primary: primary, memory: memory, observer: observer}
}

func (s *FallbackStore) Put(ctx context.Context, region string, kind models.SnapshotKind, snapshot *models.Snapshot, ttl time.Duration) error {
	err := s.primary.Put(ctx, region, kind, snapshot, ttl)
	if err == nil {
		if s.degraded.CompareAndSwap(true, false) {
			slog.Info("Snapshot store recovered", "region", region)
		}
		s.memory.Delete(region, kind)
		return nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return err
	}

	if s.degraded.CompareAndSwap(false, true) {
		slog.Warn("Snapshot store unavailable, falling back to memory", "region", region, "kind", kind, "error", err)
	}
	s.observe("put")
	return s.memory.Put(ctx, region, kind, snapshot, ttl)
}

func (s *FallbackStore) Get(ctx context.Context, region string, kind models.SnapshotKind) (*models.Snapshot, bool, error) {
	snapshot, found, err := s.primary.Get(ctx, region, kind)
	if err != nil && !errors.Is(err, ErrUnavailable) {
		return nil, false, err
	}
	if err == nil && found {
		return snapshot, true, nil
	}
	if err != nil {
		slog.Debug("Reading snapshot from memory fallback", "region", region, "kind", kind, "error", err)
		s.observe("get")
	}
	return s.memory.Get(ctx, region, kind)
}

// Degraded reports whether the last write went to memory
func (s *FallbackStore) Degraded() bool {
	return s.degraded.Load()
}

func (s *FallbackStore) observe(op string) {
	if s.observer != nil {
		s.observer.ObserveStoreFallback(op)
	}
}
