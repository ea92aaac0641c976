package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flight_collector/internal/models"
)

// ErrAdapterTimeout is returned when a source does not answer within its fetch timeout
var ErrAdapterTimeout = errors.New("source fetch timed out")

// Source is a pluggable provider of aircraft observations for one region.
// Fetch returns normalized observations: lower-case hex, data source and source type set.
type Source interface {
	Name() string
	Kind() models.SourceKind
	Fetch(ctx context.Context) ([]models.Observation, error)
	// Latest returns the observations of the most recent successful fetch
	Latest() []models.Observation
	Stats() Stats
}

// Starter is implemented by sources that keep a background feed open between fetches
type Starter interface {
	Start(ctx context.Context) error
}

// Stats describes a source's fetch history
type Stats struct {
	Name          string            `json:"name"`
	Kind          models.SourceKind `json:"kind"`
	TotalFetches  int64             `json:"total_fetches"`
	FailedFetches int64             `json:"failed_fetches"`
	LastCount     int               `json:"last_count"`
	LastSuccess   time.Time         `json:"last_success,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	LastErrorAt   time.Time         `json:"last_error_at,omitempty"`
}

// FetchError wraps a failure of one source within a collection cycle
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchWithTimeout runs one fetch bounded by timeout. A fetch that overruns is
// abandoned and its eventual result discarded.
func FetchWithTimeout(ctx context.Context, src Source, timeout time.Duration) ([]models.Observation, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		obs []models.Observation
		err error
	}
	done := make(chan result, 1)
	go func() {
		obs, err := src.Fetch(fetchCtx)
		done <- result{obs: obs, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.obs, nil
		}
		if ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, &FetchError{Source: src.Name(), Err: ErrAdapterTimeout}
		}
		return nil, &FetchError{Source: src.Name(), Err: r.err}
	case <-fetchCtx.Done():
		if ctx.Err() != nil {
			return nil, &FetchError{Source: src.Name(), Err: ctx.Err()}
		}
		return nil, &FetchError{Source: src.Name(), Err: ErrAdapterTimeout}
	}
}

// base carries the identity and fetch history shared by every adapter
type base struct {
	name string
	kind models.SourceKind

	mu     sync.RWMutex
	stats  Stats
	latest []models.Observation
}

func newBase(name string, kind models.SourceKind) *base {
	return &base{
		name:  name,
		kind:  kind,
		stats: Stats{Name: name, Kind: kind},
	}
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Kind() models.SourceKind {
	return b.kind
}

func (b *base) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

func (b *base) Latest() []models.Observation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Observation, len(b.latest))
	copy(out, b.latest)
	return out
}

// record updates the fetch history and passes the fetch result through
func (b *base) record(obs []models.Observation, err error) ([]models.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalFetches++
	if err != nil {
		b.stats.FailedFetches++
		b.stats.LastError = err.Error()
		b.stats.LastErrorAt = time.Now()
		return nil, err
	}

	b.stats.LastSuccess = time.Now()
	b.stats.LastCount = len(obs)
	b.latest = obs
	return obs, nil
}
