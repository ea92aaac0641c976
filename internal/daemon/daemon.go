package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"flight_collector/internal/api"
	"flight_collector/internal/apikey"
	"flight_collector/internal/blender"
	"flight_collector/internal/collector"
	"flight_collector/internal/config"
	"flight_collector/internal/database"
	"flight_collector/internal/observability"
	"flight_collector/internal/scheduler"
	"flight_collector/internal/sources"
	"flight_collector/internal/stations"
	"flight_collector/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

// Daemon owns every long-lived component of the collector process
type Daemon struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Config
	scheduler *scheduler.Scheduler
	database  *database.DB
	redis     *store.RedisStore
	memory    *store.MemoryStore
	starters  []sources.Starter
	server    *http.Server
	listener  net.Listener

	tracingShutdown func(context.Context) error
	done            chan struct{}
}

// New wires the daemon from configuration. A region that fails to build is
// skipped and logged; the remaining regions still run.
func New(cfg *config.Config) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		done:   make(chan struct{}),
	}

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	d.tracingShutdown = tracingShutdown

	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		d.closeResources()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	registry, err := d.openRegistry()
	if err != nil {
		d.closeResources()
		return nil, err
	}

	snapshots, health := d.openStore(metrics)

	validator := apikey.NewValidator(cfg.APIKeys.CollectorRegion, cfg.APIKeys.Keys)
	buffer := stations.NewBuffer(cfg.Stations)
	factory := sources.NewFactory(cfg, buffer)
	blend := blender.New(registry, cfg.Blend)

	opts := collector.Options{
		Interval:             cfg.Collection.Interval,
		SnapshotTTL:          cfg.Collection.SnapshotTTL,
		SourceTimeout:        cfg.Sources.Timeout,
		RetainOnTotalFailure: cfg.Collection.RetainOnTotalFailure,
	}

	d.scheduler = scheduler.New(ctx)
	var collectors []api.RegionStatus
	for _, region := range cfg.EnabledRegions() {
		if err := region.Validate(); err != nil {
			slog.Error("Skipping invalid region", "region", region.Key, "error", err)
			continue
		}

		srcs, err := factory.Build(region)
		if err != nil {
			slog.Error("Skipping region with invalid sources", "region", region.Key, "error", err)
			continue
		}
		for _, src := range srcs {
			if starter, ok := src.(sources.Starter); ok {
				d.starters = append(d.starters, starter)
			}
		}

		c := collector.New(region, srcs, blend, snapshots, opts, metrics)
		d.scheduler.AddTask(c)
		collectors = append(collectors, c)

		slog.Info("Configured region",
			"region", region.Key,
			"name", region.Name,
			"radius_miles", region.RadiusMiles,
			"sources", len(srcs),
		)
	}

	if len(collectors) == 0 {
		slog.Warn("No regions configured, only the submission API will run")
	}
	if cfg.APIKeys.CollectorRegion == "" {
		slog.Warn("No collector region configured, all station submissions will be rejected")
	}

	server := api.NewServer(api.Deps{
		Store:      snapshots,
		Regions:    cfg.SortedRegions(),
		Collectors: collectors,
		Validator:  validator,
		Stations:   buffer,
		Metrics:    metrics,
		Health:     health,
	})
	d.server = &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return d, nil
}

// openRegistry opens the aircraft database and fills it from CSV on first run.
// No database path disables enrichment.
func (d *Daemon) openRegistry() (blender.Registry, error) {
	if d.cfg.Registry.DBPath == "" {
		slog.Warn("No registry database configured, aircraft enrichment disabled")
		return nil, nil
	}

	db, err := database.New(d.cfg.Registry.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	d.database = db

	repo := db.AircraftRepository()
	populated, err := repo.IsTablePopulated()
	if err != nil {
		return nil, fmt.Errorf("failed to check aircraft table: %w", err)
	}

	switch {
	case populated:
		slog.Info("Aircraft table is already populated")
	case len(d.cfg.Registry.CSVPaths) == 0:
		slog.Warn("Aircraft table is empty and no CSV files are configured")
	default:
		slog.Info("Aircraft table is empty, loading from CSV files", "csv_paths", d.cfg.Registry.CSVPaths)
		if err := repo.LoadFromMultipleCSV(d.cfg.Registry.CSVPaths, d.cfg.Registry.BatchSize); err != nil {
			return nil, fmt.Errorf("failed to load aircraft from CSV: %w", err)
		}
		slog.Info("Successfully loaded aircraft database from CSV")
	}

	return repo, nil
}

// openStore builds the snapshot store. Redis is primary when enabled, with an
// in-process cache taking over while it is unreachable.
func (d *Daemon) openStore(metrics *observability.Metrics) (store.Store, func(context.Context) error) {
	d.memory = store.NewMemoryStore()
	if !d.cfg.Redis.Enabled {
		slog.Warn("Redis disabled, snapshots are only visible to this process")
		return d.memory, nil
	}

	d.redis = store.NewRedisStore(store.NewRedisClient(d.cfg.Redis), d.cfg.Redis.KeyPrefix)

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Redis.DialTimeout+time.Second)
	defer cancel()
	if err := d.redis.Ping(ctx); err != nil {
		slog.Warn("Redis unreachable at startup, using in-memory fallback", "addr", d.cfg.Redis.Addr, "error", err)
	} else {
		slog.Info("Connected to Redis", "addr", d.cfg.Redis.Addr)
	}

	return store.NewFallbackStore(d.redis, d.memory, metrics), d.redis.Ping
}

// Start starts the source feeds, the region schedules and the HTTP listener
func (d *Daemon) Start() error {
	slog.Info("Starting daemon")

	ln, err := net.Listen("tcp", d.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.server.Addr, err)
	}
	d.listener = ln

	for _, starter := range d.starters {
		if err := starter.Start(d.ctx); err != nil {
			slog.Error("Failed to start source feed", "error", err)
		}
	}

	d.scheduler.Start()

	go func() {
		defer close(d.done)
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "error", err)
		}
	}()

	slog.Info("Daemon started successfully", "addr", ln.Addr().String())
	return nil
}

// Addr returns the address the HTTP listener is bound to
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return d.server.Addr
	}
	return d.listener.Addr().String()
}

// Stop lets in-flight cycles finish within the shutdown grace, then stops the
// listener and releases every resource
func (d *Daemon) Stop() error {
	slog.Info("Stopping daemon")

	if !d.scheduler.Stop(d.cfg.Collection.ShutdownGrace) {
		slog.Warn("Collection cycles did not finish within the shutdown grace", "grace", d.cfg.Collection.ShutdownGrace)
	}
	d.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		slog.Error("Error shutting down HTTP server", "error", err)
	}
	if d.listener != nil {
		<-d.done
	}

	d.closeResources()

	slog.Info("Daemon stopped")
	return nil
}

func (d *Daemon) closeResources() {
	d.cancel()

	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}
	if d.memory != nil {
		if err := d.memory.Close(); err != nil {
			slog.Error("Error closing memory store", "error", err)
		}
	}
	if d.database != nil {
		if err := d.database.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}

	observability.ShutdownWithTimeout(context.Background(), d.tracingShutdown)
}
