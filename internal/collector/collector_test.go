package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flight_collector/internal/blender"
	"flight_collector/internal/config"
	"flight_collector/internal/models"
	"flight_collector/internal/observability"
	"flight_collector/internal/sources"
	"flight_collector/internal/stations"
	"flight_collector/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var east = config.RegionConfig{
	Key:         "east",
	Center:      config.Coordinate{Lat: 32.35, Lon: -95.30},
	RadiusMiles: 100,
}

// mockSource returns canned observations or an error
type mockSource struct {
	name  string
	kind  models.SourceKind
	obs   []models.Observation
	err   error
	delay time.Duration
}

func (m *mockSource) Name() string                 { return m.name }
func (m *mockSource) Kind() models.SourceKind      { return m.kind }
func (m *mockSource) Latest() []models.Observation { return m.obs }
func (m *mockSource) Stats() sources.Stats         { return sources.Stats{Name: m.name, Kind: m.kind} }

func (m *mockSource) Fetch(ctx context.Context) ([]models.Observation, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.obs, m.err
}

type putCall struct {
	region string
	kind   models.SnapshotKind
	snap   *models.Snapshot
	ttl    time.Duration
}

// mockStore records writes and serves the latest one
type mockStore struct {
	mu        sync.Mutex
	puts      []putCall
	putErrors []error
	getErr    error
	snapshots map[models.SnapshotKind]*models.Snapshot
}

func newMockStore() *mockStore {
	return &mockStore{snapshots: make(map[models.SnapshotKind]*models.Snapshot)}
}

func (m *mockStore) Put(ctx context.Context, region string, kind models.SnapshotKind, snapshot *models.Snapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, putCall{region: region, kind: kind, snap: snapshot, ttl: ttl})
	if len(m.putErrors) > 0 {
		err := m.putErrors[0]
		m.putErrors = m.putErrors[1:]
		if err != nil {
			return err
		}
	}
	m.snapshots[kind] = snapshot
	return nil
}

func (m *mockStore) Get(ctx context.Context, region string, kind models.SnapshotKind) (*models.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	s, ok := m.snapshots[kind]
	return s, ok, nil
}

func (m *mockStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.puts)
}

func testOptions() Options {
	return Options{
		Interval:             60 * time.Second,
		SnapshotTTL:          90 * time.Second,
		SourceTimeout:        200 * time.Millisecond,
		RetainOnTotalFailure: true,
	}
}

func newTestCollector(t *testing.T, srcs []sources.Source, st store.Store) (*RegionCollector, *observability.Metrics) {
	t.Helper()
	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	b := blender.New(nil, config.BlendConfig{FreshnessWindow: time.Minute, Priority: config.DefaultPriority()})
	return New(east, srcs, b, st, testOptions(), metrics), metrics
}

func observation(hex, source string, kind models.SourceKind) models.Observation {
	return models.Observation{Hex: hex, DataSource: source, SourceType: kind, SeenAt: time.Now()}
}

func TestRun_PublishesBlendedSnapshot(t *testing.T) {
	st := newMockStore()
	heli := observation("a00001", "opensky", models.SourceOpenSky)
	heli.Category = models.StringPtr("A7")

	c, metrics := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, obs: []models.Observation{
			observation("abc123", "opensky", models.SourceOpenSky),
			heli,
		}},
		&mockSource{name: "east/dump1090", kind: models.SourceDump1090, err: errors.New("connection refused")},
		&mockSource{name: "east/beast", kind: models.SourceBeast, delay: time.Hour},
	}, st)

	require.NoError(t, c.Run(context.Background()))

	require.Equal(t, 2, st.putCount())
	assert.Equal(t, models.KindFlights, st.puts[0].kind)
	assert.Equal(t, "east", st.puts[0].region)
	assert.Equal(t, 90*time.Second, st.puts[0].ttl)
	assert.Equal(t, 2, st.puts[0].snap.AircraftCount)

	assert.Equal(t, models.KindChoppers, st.puts[1].kind)
	require.Len(t, st.puts[1].snap.Aircraft, 1)
	assert.Equal(t, "a00001", st.puts[1].snap.Aircraft[0].Hex)

	status := c.Status()
	assert.Equal(t, ResultPublished, status.LastResult)
	assert.Equal(t, 2, status.AircraftCount)
	assert.Equal(t, 1, status.HelicopterCount)
	assert.Equal(t, map[string]string{
		"east/opensky":  "ok",
		"east/dump1090": "error",
		"east/beast":    "timeout",
	}, status.SourceResults)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Cycles.WithLabelValues("east", ResultPublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SourceFetches.WithLabelValues("east", "east/beast", "timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RegionAircraft.WithLabelValues("east", "flights")))
}

func TestRun_RetainsPreviousSnapshotWhenAllSourcesFail(t *testing.T) {
	st := newMockStore()
	previous := &models.Snapshot{
		Region:        "east",
		Kind:          models.KindFlights,
		AircraftCount: 1,
		Aircraft:      []models.Observation{observation("abc123", "opensky", models.SourceOpenSky)},
	}
	st.snapshots[models.KindFlights] = previous

	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, err: errors.New("503")},
		&mockSource{name: "east/dump1090", kind: models.SourceDump1090, err: errors.New("refused")},
	}, st)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 0, st.putCount())
	assert.Same(t, previous, st.snapshots[models.KindFlights])
	assert.Equal(t, ResultRetained, c.Status().LastResult)
}

func TestRun_IdleStationDoesNotBlockRetain(t *testing.T) {
	st := newMockStore()
	previous := &models.Snapshot{
		Region:        "east",
		Kind:          models.KindFlights,
		AircraftCount: 1,
		Aircraft:      []models.Observation{observation("abc123", "opensky", models.SourceOpenSky)},
	}
	st.snapshots[models.KindFlights] = previous

	buffer := stations.NewBuffer(config.StationsConfig{MaxStations: 4, MaxAircraft: 10, TTL: time.Minute})
	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, err: errors.New("503")},
		sources.NewStation("east/pi_station", "east", buffer),
	}, st)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 0, st.putCount())
	assert.Same(t, previous, st.snapshots[models.KindFlights])
	status := c.Status()
	assert.Equal(t, ResultRetained, status.LastResult)
	assert.Equal(t, "ok", status.SourceResults["east/pi_station"])

	// Once a station reports aircraft, the cycle publishes them
	_, err := buffer.Submit("east", stations.Submission{
		StationID: "pi01",
		Aircraft:  []models.Observation{{Hex: "def456"}},
	})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 2, st.putCount())
	require.Len(t, st.puts[0].snap.Aircraft, 1)
	assert.Equal(t, "def456", st.puts[0].snap.Aircraft[0].Hex)
	assert.Equal(t, ResultPublished, c.Status().LastResult)
}

func TestRun_StationOnlyRegionPublishesEmpty(t *testing.T) {
	st := newMockStore()
	st.snapshots[models.KindFlights] = &models.Snapshot{
		Aircraft: []models.Observation{observation("abc123", "pi_station_pi01", models.SourcePiStation)},
	}

	buffer := stations.NewBuffer(config.StationsConfig{MaxStations: 4, MaxAircraft: 10, TTL: time.Minute})
	c, _ := newTestCollector(t, []sources.Source{
		sources.NewStation("east/pi_station", "east", buffer),
	}, st)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 2, st.putCount())
	assert.True(t, st.puts[0].snap.IsEmpty())
	assert.Equal(t, ResultPublished, c.Status().LastResult)
}

func TestRun_PublishesEmptySnapshotWithoutPrevious(t *testing.T) {
	st := newMockStore()
	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, err: errors.New("503")},
	}, st)

	require.NoError(t, c.Run(context.Background()))

	require.Equal(t, 2, st.putCount())
	assert.True(t, st.puts[0].snap.IsEmpty())
	assert.NotNil(t, st.puts[0].snap.Aircraft)
}

func TestRun_RetainDisabledOverwrites(t *testing.T) {
	st := newMockStore()
	st.snapshots[models.KindFlights] = &models.Snapshot{
		Aircraft: []models.Observation{observation("abc123", "opensky", models.SourceOpenSky)},
	}

	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, err: errors.New("503")},
	}, st)
	c.opts.RetainOnTotalFailure = false

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 2, st.putCount())
}

func TestRun_NoSourcesPublishesEmpty(t *testing.T) {
	st := newMockStore()
	st.snapshots[models.KindFlights] = &models.Snapshot{
		Aircraft: []models.Observation{observation("abc123", "opensky", models.SourceOpenSky)},
	}

	c, _ := newTestCollector(t, nil, st)
	require.NoError(t, c.Run(context.Background()))

	require.Equal(t, 2, st.putCount())
	assert.True(t, st.puts[0].snap.IsEmpty())
}

func TestRun_RetriesWriteOnce(t *testing.T) {
	st := newMockStore()
	st.putErrors = []error{store.ErrUnavailable, nil}

	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, obs: []models.Observation{
			observation("abc123", "opensky", models.SourceOpenSky),
		}},
	}, st)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 3, st.putCount(), "flights twice, choppers once")
	assert.Equal(t, ResultPublished, c.Status().LastResult)
}

func TestRun_WriteFailureIsContained(t *testing.T) {
	st := newMockStore()
	st.putErrors = []error{store.ErrUnavailable, store.ErrUnavailable}

	c, metrics := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, obs: []models.Observation{
			observation("abc123", "opensky", models.SourceOpenSky),
		}},
	}, st)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 2, st.putCount())
	assert.Equal(t, ResultWriteFailed, c.Status().LastResult)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Cycles.WithLabelValues("east", ResultWriteFailed)))
}

func TestRun_ChoppersWriteFailureAfterFlights(t *testing.T) {
	st := newMockStore()
	st.putErrors = []error{nil, store.ErrUnavailable, store.ErrUnavailable}

	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, obs: []models.Observation{
			observation("abc123", "opensky", models.SourceOpenSky),
		}},
	}, st)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 3, st.putCount(), "flights once, choppers twice")
	assert.Equal(t, models.KindFlights, st.puts[0].kind)
	assert.Equal(t, models.KindChoppers, st.puts[1].kind)
	assert.Equal(t, models.KindChoppers, st.puts[2].kind)

	require.Contains(t, st.snapshots, models.KindFlights)
	assert.NotContains(t, st.snapshots, models.KindChoppers)
	assert.Equal(t, ResultWriteFailed, c.Status().LastResult)
}

func TestRun_CancelledCycleWritesNothing(t *testing.T) {
	st := newMockStore()
	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, delay: time.Hour},
	}, st)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, st.putCount())
	assert.Equal(t, ResultCancelled, c.Status().LastResult)
}

func TestRun_UnreadableStoreRetains(t *testing.T) {
	st := newMockStore()
	st.getErr = store.ErrUnavailable

	c, _ := newTestCollector(t, []sources.Source{
		&mockSource{name: "east/opensky", kind: models.SourceOpenSky, err: errors.New("503")},
	}, st)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 0, st.putCount())
}

func TestTaskIdentity(t *testing.T) {
	c, _ := newTestCollector(t, nil, newMockStore())
	assert.Equal(t, "region:east", c.Name())
	assert.Equal(t, 60*time.Second, c.Interval())
	assert.Equal(t, "east", c.Region().Key)
}
