package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collector's Prometheus metrics. All methods are safe on a nil receiver.
type Metrics struct {
	gatherer prometheus.Gatherer

	Cycles             *prometheus.CounterVec
	CycleDuration      *prometheus.HistogramVec
	SourceFetches      *prometheus.CounterVec
	RegionAircraft     *prometheus.GaugeVec
	StoreFallbacks     *prometheus.CounterVec
	APIKeyValidations  *prometheus.CounterVec
	StationSubmissions *prometheus.CounterVec
}

// NewMetrics registers the metrics against reg, defaulting to the global registry when nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_cycles_total",
		Help: "Collection cycles per region, labeled by outcome.",
	}, []string{"region", "result"}), "collector_cycles_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collector_cycle_duration_seconds",
		Help:    "Duration of a collection cycle in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"region"}), "collector_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_source_fetches_total",
		Help: "Source fetches per region and source, labeled by outcome (ok, error, timeout).",
	}, []string{"region", "source", "result"}), "collector_source_fetches_total")
	if err != nil {
		return nil, err
	}

	aircraft, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "collector_region_aircraft",
		Help: "Aircraft in the last published snapshot of a region.",
	}, []string{"region", "kind"}), "collector_region_aircraft")
	if err != nil {
		return nil, err
	}

	fallbacks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_fallback_operations_total",
		Help: "Snapshot store operations served by the in-memory fallback.",
	}, []string{"op"}), "store_fallback_operations_total")
	if err != nil {
		return nil, err
	}

	validations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apikey_validations_total",
		Help: "Field-station API key validations, labeled by result.",
	}, []string{"result"}), "apikey_validations_total")
	if err != nil {
		return nil, err
	}

	submissions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_submissions_total",
		Help: "Field-station bulk submissions, labeled by result.",
	}, []string{"result"}), "station_submissions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:           gatherer,
		Cycles:             cycles,
		CycleDuration:      duration,
		SourceFetches:      fetches,
		RegionAircraft:     aircraft,
		StoreFallbacks:     fallbacks,
		APIKeyValidations:  validations,
		StationSubmissions: submissions,
	}, nil
}

// Handler exposes the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(region, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(region, result).Inc()
	m.CycleDuration.WithLabelValues(region).Observe(d.Seconds())
}

func (m *Metrics) ObserveSourceFetch(region, source, result string) {
	if m == nil {
		return
	}
	m.SourceFetches.WithLabelValues(region, source, result).Inc()
}

func (m *Metrics) SetRegionAircraft(region, kind string, count int) {
	if m == nil {
		return
	}
	m.RegionAircraft.WithLabelValues(region, kind).Set(float64(count))
}

// ObserveStoreFallback satisfies store.FallbackObserver
func (m *Metrics) ObserveStoreFallback(op string) {
	if m == nil {
		return
	}
	m.StoreFallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveAPIKeyValidation(result string) {
	if m == nil {
		return
	}
	m.APIKeyValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStationSubmission(result string) {
	if m == nil {
		return
	}
	m.StationSubmissions.WithLabelValues(result).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
