package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"flight_collector/internal/config"
	"flight_collector/internal/models"
	"flight_collector/internal/observability"
	"flight_collector/internal/sources"
	"flight_collector/internal/store"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Cycle outcomes, used as the result label of collector_cycles_total
const (
	ResultPublished   = "published"
	ResultRetained    = "retained"
	ResultWriteFailed = "write_failed"
	ResultCancelled   = "cancelled"
)

// Blender turns one cycle's observations into a region snapshot
type Blender interface {
	Blend(ctx context.Context, region config.RegionConfig, observations []models.Observation) *models.Snapshot
}

// Options tunes a region collector
type Options struct {
	Interval             time.Duration
	SnapshotTTL          time.Duration
	SourceTimeout        time.Duration
	RetainOnTotalFailure bool
}

// Status describes the most recent cycle of a region
type Status struct {
	Region          string            `json:"region"`
	LastCycle       time.Time         `json:"last_cycle,omitempty"`
	LastResult      string            `json:"last_result,omitempty"`
	LastPublished   time.Time         `json:"last_published,omitempty"`
	AircraftCount   int               `json:"aircraft_count"`
	HelicopterCount int               `json:"helicopter_count"`
	SourceResults   map[string]string `json:"source_results"`
	Cycles          int64             `json:"cycles"`
}

// RegionCollector runs the collection cycle of one region as a scheduler task
type RegionCollector struct {
	region  config.RegionConfig
	sources []sources.Source
	blender Blender
	store   store.Store
	opts    Options
	metrics *observability.Metrics
	tracer  trace.Tracer

	mu     sync.RWMutex
	status Status
}

func New(region config.RegionConfig, srcs []sources.Source, blender Blender, st store.Store, opts Options, metrics *observability.Metrics) *RegionCollector {
	return &RegionCollector{
		region:  region,
		sources: srcs,
		blender: blender,
		store:   st,
		opts:    opts,
		metrics: metrics,
		tracer:  otel.Tracer(observability.TracerName),
		status:  Status{Region: region.Key, SourceResults: map[string]string{}},
	}
}

func (c *RegionCollector) Name() string {
	return "region:" + c.region.Key
}

func (c *RegionCollector) Interval() time.Duration {
	return c.opts.Interval
}

// Region returns the region configuration
func (c *RegionCollector) Region() config.RegionConfig {
	return c.region
}

// Sources returns the region's sources
func (c *RegionCollector) Sources() []sources.Source {
	return c.sources
}

// Status returns a copy of the last cycle status
func (c *RegionCollector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := c.status
	status.SourceResults = make(map[string]string, len(c.status.SourceResults))
	for k, v := range c.status.SourceResults {
		status.SourceResults[k] = v
	}
	return status
}

type fetchResult struct {
	source sources.Source
	obs    []models.Observation
	err    error
}

// Run executes one collection cycle. Source and store failures are logged and
// never returned; only cancellation is.
func (c *RegionCollector) Run(ctx context.Context) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "collector.cycle", trace.WithAttributes(
		attribute.String("region", c.region.Key),
		attribute.Int("sources", len(c.sources)),
	))
	defer span.End()

	results := c.fetchAll(ctx)

	var observations []models.Observation
	succeeded, contributed := 0, 0
	sourceResults := make(map[string]string, len(results))
	for _, r := range results {
		outcome := "ok"
		if r.err != nil {
			outcome = "error"
			if errors.Is(r.err, sources.ErrAdapterTimeout) {
				outcome = "timeout"
			}
			slog.Warn("Source fetch failed",
				"region", c.region.Key,
				"source", r.source.Name(),
				"kind", r.source.Kind(),
				"error", r.err,
			)
		} else {
			succeeded++
			if len(r.obs) > 0 || !passive(r.source) {
				contributed++
			}
			observations = append(observations, r.obs...)
		}
		sourceResults[r.source.Name()] = outcome
		c.metrics.ObserveSourceFetch(c.region.Key, r.source.Name(), outcome)
	}

	if ctx.Err() != nil {
		c.finish(ResultCancelled, start, sourceResults, nil)
		return ctx.Err()
	}

	snapshot := c.blender.Blend(ctx, c.region, observations)

	// An idle station buffer does not count as fresh data
	failed := len(results) - succeeded
	if failed > 0 && contributed == 0 && c.opts.RetainOnTotalFailure && c.hasPrevious(ctx) {
		slog.Warn("All sources failed, keeping previous snapshot",
			"region", c.region.Key,
			"sources", len(c.sources),
			"sources_failed", failed,
		)
		span.SetAttributes(attribute.String("result", ResultRetained))
		c.finish(ResultRetained, start, sourceResults, nil)
		return nil
	}

	if ctx.Err() != nil {
		c.finish(ResultCancelled, start, sourceResults, nil)
		return ctx.Err()
	}

	// Both kinds are written together even if shutdown starts mid-write
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout())
	defer cancel()

	choppers := snapshot.HelicopterView()
	var written []models.SnapshotKind
	for _, s := range []*models.Snapshot{snapshot, choppers} {
		if err := c.put(writeCtx, s); err != nil {
			slog.Error("Failed to write snapshot",
				"region", c.region.Key,
				"kind", s.Kind,
				"error", err,
			)
			if len(written) > 0 {
				slog.Warn("Snapshot kinds out of sync until the next cycle",
					"region", c.region.Key,
					"written", written,
					"stale", s.Kind,
					"timestamp", snapshot.Timestamp,
				)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "snapshot write failed")
			c.finish(ResultWriteFailed, start, sourceResults, nil)
			return nil
		}
		written = append(written, s.Kind)
	}

	c.metrics.SetRegionAircraft(c.region.Key, string(models.KindFlights), snapshot.AircraftCount)
	c.metrics.SetRegionAircraft(c.region.Key, string(models.KindChoppers), choppers.AircraftCount)
	span.SetAttributes(
		attribute.String("result", ResultPublished),
		attribute.Int("aircraft", snapshot.AircraftCount),
	)

	slog.Info("Published region snapshot",
		"region", c.region.Key,
		"aircraft", snapshot.AircraftCount,
		"helicopters", choppers.AircraftCount,
		"sources_ok", succeeded,
		"sources_failed", failed,
		"duration", time.Since(start),
	)
	c.finish(ResultPublished, start, sourceResults, snapshot)
	return nil
}

// fetchAll queries every source concurrently, each under its own timeout
func (c *RegionCollector) fetchAll(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(c.sources))
	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()
			fetchCtx, span := c.tracer.Start(ctx, "source.fetch", trace.WithAttributes(
				attribute.String("region", c.region.Key),
				attribute.String("source", src.Name()),
				attribute.String("kind", string(src.Kind())),
			))
			defer span.End()

			obs, err := sources.FetchWithTimeout(fetchCtx, src, c.opts.SourceTimeout)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.Int("observations", len(obs)))
			}
			results[i] = fetchResult{source: src, obs: obs, err: err}
		}(i, src)
	}
	wg.Wait()
	return results
}

// hasPrevious reports whether a non-empty snapshot is still live for the region.
// An unreadable store counts as present so a blind overwrite is avoided.
func (c *RegionCollector) hasPrevious(ctx context.Context) bool {
	prev, found, err := c.store.Get(ctx, c.region.Key, models.KindFlights)
	if err != nil {
		slog.Warn("Failed to read previous snapshot", "region", c.region.Key, "error", err)
		return true
	}
	return found && !prev.IsEmpty()
}

// put writes one snapshot, retrying once immediately
func (c *RegionCollector) put(ctx context.Context, snapshot *models.Snapshot) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.store.Put(ctx, c.region.Key, snapshot.Kind, snapshot, c.opts.SnapshotTTL)
		if err != nil && attempt == 1 {
			slog.Warn("Snapshot write failed, retrying", "region", c.region.Key, "kind", snapshot.Kind, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(&backoff.ZeroBackOff{}), backoff.WithMaxTries(2))
	return err
}

func (c *RegionCollector) writeTimeout() time.Duration {
	if c.opts.SourceTimeout > 0 {
		return c.opts.SourceTimeout
	}
	return 10 * time.Second
}

func (c *RegionCollector) finish(result string, start time.Time, sourceResults map[string]string, published *models.Snapshot) {
	c.metrics.ObserveCycle(c.region.Key, result, time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Cycles++
	c.status.LastCycle = start
	c.status.LastResult = result
	c.status.SourceResults = sourceResults
	if published != nil {
		c.status.LastPublished = published.Timestamp
		c.status.AircraftCount = published.AircraftCount
		c.status.HelicopterCount = 0
		for _, ac := range published.Aircraft {
			if ac.IsHelicopter {
				c.status.HelicopterCount++
			}
		}
	}
}

// passive sources report whatever was pushed to them and succeed even when
// nothing arrived
func passive(src sources.Source) bool {
	return src.Kind() == models.SourcePiStation
}
