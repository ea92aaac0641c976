package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the collector
type Config struct {
	HTTP       HTTPConfig
	Collection CollectionConfig
	Sources    SourcesConfig
	Blend      BlendConfig
	Redis      RedisConfig
	Registry   RegistryConfig
	OpenSky    OpenSkyConfig
	Beast      BeastConfig
	APIKeys    APIKeyConfig
	Stations   StationsConfig
	Tracing    TracingConfig
	Log        LogConfig
	Regions    map[string]RegionConfig
}

// HTTPConfig holds the read/submit API listener settings
type HTTPConfig struct {
	ListenAddr string
}

// CollectionConfig controls the per-region collection cycle
type CollectionConfig struct {
	Interval             time.Duration
	SnapshotTTL          time.Duration // defaults to 1.5x Interval
	ShutdownGrace        time.Duration
	RetainOnTotalFailure bool // keep the previous snapshot when every source fails
}

// SourcesConfig holds settings shared by all source adapters
type SourcesConfig struct {
	Timeout time.Duration // per-adapter fetch timeout
}

// BlendConfig controls conflict resolution between sources
type BlendConfig struct {
	FreshnessWindow time.Duration
	Priority        map[string]int // source kind -> rank, higher wins
}

// RedisConfig holds the shared snapshot cache settings
type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// RegistryConfig holds the aircraft database settings
type RegistryConfig struct {
	DBPath    string
	CSVPaths  []string
	BatchSize int
}

// OpenSkyConfig holds the public flight-data API settings
type OpenSkyConfig struct {
	URL         string
	Username    string
	Password    string
	MinInterval time.Duration // minimum spacing between requests
	MaxAttempts int
}

// BeastConfig holds the local Beast feed tracker settings
type BeastConfig struct {
	Window        time.Duration // aircraft not heard within this window are dropped
	BatchSize     int
	FlushInterval time.Duration
}

// APIKeyConfig holds field-station credential settings
type APIKeyConfig struct {
	CollectorRegion string
	Keys            []string // optional allowlist, empty accepts any well-formed key for the region
}

// StationsConfig bounds the field-station submission buffer
type StationsConfig struct {
	MaxStations int
	MaxAircraft int
	TTL         time.Duration
}

// TracingConfig governs how tracing is initialised
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string
	SampleRatio float64
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from .env, config file and environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/flight_collector")
	v.AddConfigPath(".")

	if configPath := os.Getenv("FLIGHT_COLLECTOR_CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK - defaults + env vars
	}

	v.SetEnvPrefix("FLIGHT_COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.listen_addr", ":8000")

	v.SetDefault("collection.interval", 60*time.Second)
	v.SetDefault("collection.snapshot_ttl", 0)
	v.SetDefault("collection.shutdown_grace", 10*time.Second)
	v.SetDefault("collection.retain_on_total_failure", true)

	v.SetDefault("sources.timeout", 15*time.Second)

	v.SetDefault("blend.freshness_window", 60*time.Second)
	for kind, rank := range DefaultPriority() {
		v.SetDefault("blend.priority."+kind, rank)
	}

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "flight_collector")
	v.SetDefault("redis.dial_timeout", 2*time.Second)

	v.SetDefault("registry.db_path", "aircraft_registry.db")
	v.SetDefault("registry.csv_paths", []string{})
	v.SetDefault("registry.batch_size", 5000)

	v.SetDefault("opensky.url", "https://opensky-network.org/api/states/all")
	v.SetDefault("opensky.min_interval", 10*time.Second)
	v.SetDefault("opensky.max_attempts", 3)

	v.SetDefault("beast.window", 60*time.Second)
	v.SetDefault("beast.batch_size", 100)
	v.SetDefault("beast.flush_interval", 1*time.Second)

	v.SetDefault("api_keys.collector_region", "")
	v.SetDefault("api_keys.keys", []string{})

	v.SetDefault("stations.max_stations", 32)
	v.SetDefault("stations.max_aircraft", 2000)
	v.SetDefault("stations.ttl", 5*time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "flight-collector")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// DefaultPriority ranks direct reception above aggregator data
func DefaultPriority() map[string]int {
	return map[string]int{
		"pi_station": 30,
		"beast":      20,
		"dump1090":   20,
		"opensky":    10,
	}
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr: v.GetString("http.listen_addr"),
		},
		Collection: CollectionConfig{
			Interval:             v.GetDuration("collection.interval"),
			SnapshotTTL:          v.GetDuration("collection.snapshot_ttl"),
			ShutdownGrace:        v.GetDuration("collection.shutdown_grace"),
			RetainOnTotalFailure: v.GetBool("collection.retain_on_total_failure"),
		},
		Sources: SourcesConfig{
			Timeout: v.GetDuration("sources.timeout"),
		},
		Blend: BlendConfig{
			FreshnessWindow: v.GetDuration("blend.freshness_window"),
			Priority:        make(map[string]int),
		},
		Redis: RedisConfig{
			Enabled:     v.GetBool("redis.enabled"),
			Addr:        v.GetString("redis.addr"),
			Password:    v.GetString("redis.password"),
			DB:          v.GetInt("redis.db"),
			KeyPrefix:   v.GetString("redis.key_prefix"),
			DialTimeout: v.GetDuration("redis.dial_timeout"),
		},
		Registry: RegistryConfig{
			DBPath:    v.GetString("registry.db_path"),
			CSVPaths:  v.GetStringSlice("registry.csv_paths"),
			BatchSize: v.GetInt("registry.batch_size"),
		},
		OpenSky: OpenSkyConfig{
			URL:         v.GetString("opensky.url"),
			Username:    v.GetString("opensky.username"),
			Password:    v.GetString("opensky.password"),
			MinInterval: v.GetDuration("opensky.min_interval"),
			MaxAttempts: v.GetInt("opensky.max_attempts"),
		},
		Beast: BeastConfig{
			Window:        v.GetDuration("beast.window"),
			BatchSize:     v.GetInt("beast.batch_size"),
			FlushInterval: v.GetDuration("beast.flush_interval"),
		},
		APIKeys: APIKeyConfig{
			CollectorRegion: strings.ToLower(v.GetString("api_keys.collector_region")),
			Keys:            v.GetStringSlice("api_keys.keys"),
		},
		Stations: StationsConfig{
			MaxStations: v.GetInt("stations.max_stations"),
			MaxAircraft: v.GetInt("stations.max_aircraft"),
			TTL:         v.GetDuration("stations.ttl"),
		},
		Tracing: TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			ServiceName: v.GetString("tracing.service_name"),
			Exporter:    v.GetString("tracing.exporter"),
			Endpoint:    v.GetString("tracing.endpoint"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	kinds := v.GetStringMap("blend.priority")
	for kind := range DefaultPriority() {
		kinds[kind] = nil
	}
	for kind := range kinds {
		cfg.Blend.Priority[strings.ToLower(kind)] = v.GetInt("blend.priority." + kind)
	}

	if cfg.Collection.SnapshotTTL <= 0 {
		cfg.Collection.SnapshotTTL = cfg.Collection.Interval + cfg.Collection.Interval/2
	}

	regions := make(map[string]RegionConfig)
	if err := v.UnmarshalKey("regions", &regions); err != nil {
		return nil, fmt.Errorf("error decoding regions: %w", err)
	}
	cfg.Regions = make(map[string]RegionConfig, len(regions))
	for key, region := range regions {
		key = strings.ToLower(key)
		region.Key = key
		if region.Name == "" {
			region.Name = key
		}
		cfg.Regions[key] = region
	}

	return cfg, nil
}

// validate validates the configuration values. Region contents are checked
// separately so one broken region does not stop the others.
func validate(cfg *Config) error {
	if cfg.Collection.Interval <= 0 {
		return fmt.Errorf("collection.interval must be greater than 0")
	}

	if cfg.Collection.SnapshotTTL <= cfg.Collection.Interval {
		return fmt.Errorf("collection.snapshot_ttl (%s) must be longer than collection.interval (%s)",
			cfg.Collection.SnapshotTTL, cfg.Collection.Interval)
	}

	if cfg.Sources.Timeout <= 0 {
		return fmt.Errorf("sources.timeout must be greater than 0")
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if cfg.OpenSky.MaxAttempts <= 0 {
		return fmt.Errorf("opensky.max_attempts must be greater than 0")
	}

	// Each region polls once per cycle on its own limiter
	if cfg.OpenSky.MinInterval > cfg.Collection.Interval {
		return fmt.Errorf("opensky.min_interval (%s) must not exceed collection.interval (%s)",
			cfg.OpenSky.MinInterval, cfg.Collection.Interval)
	}

	if cfg.Beast.BatchSize <= 0 {
		return fmt.Errorf("beast.batch_size must be greater than 0")
	}

	if cfg.Stations.MaxStations <= 0 || cfg.Stations.MaxAircraft <= 0 {
		return fmt.Errorf("stations.max_stations and stations.max_aircraft must be greater than 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Log.Format)
	}

	return nil
}

// EnabledRegions returns enabled regions ordered by key
func (c *Config) EnabledRegions() []RegionConfig {
	keys := make([]string, 0, len(c.Regions))
	for key, region := range c.Regions {
		if region.IsEnabled() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]RegionConfig, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.Regions[key])
	}
	return out
}

// SortedRegions returns every configured region ordered by key
func (c *Config) SortedRegions() []RegionConfig {
	keys := make([]string, 0, len(c.Regions))
	for key := range c.Regions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]RegionConfig, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.Regions[key])
	}
	return out
}
