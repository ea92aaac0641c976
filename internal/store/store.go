package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flight_collector/internal/models"
)

// ErrUnavailable is returned when the backing store cannot be reached
var ErrUnavailable = errors.New("snapshot store unavailable")

// Store holds the latest snapshot per region and kind. Entries vanish after their TTL,
// which is how readers learn a region went stale.
type Store interface {
	Put(ctx context.Context, region string, kind models.SnapshotKind, snapshot *models.Snapshot, ttl time.Duration) error
	// Get returns false when no live snapshot exists
	Get(ctx context.Context, region string, kind models.SnapshotKind) (*models.Snapshot, bool, error)
}

// Key builds the storage key of a region snapshot
func Key(prefix, region string, kind models.SnapshotKind) string {
	if prefix == "" {
		return fmt.Sprintf("%s:%s", region, kind)
	}
	return fmt.Sprintf("%s:%s:%s", prefix, region, kind)
}

func encode(snapshot *models.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}
