package store

import (
	"context"
	"time"

	"flight_collector/internal/models"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New[string, []byte](
		// Reads must not extend a snapshot's lifetime
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Put(ctx context.Context, region string, kind models.SnapshotKind, snapshot *models.Snapshot, ttl time.Duration) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	s.cache.Set(Key("", region, kind), data, ttl)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, region string, kind models.SnapshotKind) (*models.Snapshot, bool, error) {
	item := s.cache.Get(Key("", region, kind))
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	snapshot, err := decode(item.Value())
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// Delete drops a region snapshot
func (s *MemoryStore) Delete(region string, kind models.SnapshotKind) {
	s.cache.Delete(Key("", region, kind))
}

// Close stops the expiry loop
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
