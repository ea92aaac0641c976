package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flight_collector/internal/config"
	"flight_collector/internal/geo"
	"flight_collector/internal/models"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	metersToFeet = 3.28084
	mpsToKnots   = 1.943844
)

// Column positions of a state vector in the states/all response
const (
	stateICAO24 = iota
	stateCallsign
	stateOriginCountry
	stateTimePosition
	stateLastContact
	stateLongitude
	stateLatitude
	stateBaroAltitude
	stateOnGround
	stateVelocity
	stateTrueTrack
	stateVerticalRate
	stateSensors
	stateGeoAltitude
	stateSquawk
	stateSPI
	statePositionSource
	stateCategory
)

// openSkyCategories maps aircraft category numbers to ADS-B emitter categories
var openSkyCategories = map[int]string{
	2: "A1", 3: "A2", 4: "A3", 5: "A4", 6: "A5", 7: "A6", 8: "A7",
	9: "B1", 10: "B2", 11: "B3", 12: "B4", 14: "B6", 15: "B7",
	16: "C1", 17: "C2", 18: "C3", 19: "C4", 20: "C5",
}

type openSkyResponse struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

// httpStatusError is a non-200 answer from an upstream API
type httpStatusError struct {
	Status string
	Code   int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}

// OpenSky polls the OpenSky Network states/all endpoint for a region's bounding box
type OpenSky struct {
	*base
	url           string
	username      string
	password      string
	bbox          geo.BBox
	httpClient    *http.Client
	limiter       *rate.Limiter
	maxAttempts   int
	retryInterval time.Duration
}

// NewOpenSky creates an OpenSky source. A nil limiter creates one spaced by
// cfg.MinInterval; each region owns its own so regions never wait on each other.
func NewOpenSky(name string, region config.RegionConfig, cfg config.OpenSkyConfig, httpClient *http.Client, limiter *rate.Limiter) *OpenSky {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if limiter == nil {
		limiter = NewOpenSkyLimiter(cfg.MinInterval)
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &OpenSky{
		base:          newBase(name, models.SourceOpenSky),
		url:           cfg.URL,
		username:      cfg.Username,
		password:      cfg.Password,
		bbox:          geo.BoundingBox(region.Center.Lat, region.Center.Lon, region.RadiusMiles),
		httpClient:    httpClient,
		limiter:       limiter,
		maxAttempts:   maxAttempts,
		retryInterval: 2 * time.Second,
	}
}

// NewOpenSkyLimiter allows one request per minInterval
func NewOpenSkyLimiter(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

// Fetch waits for the rate limiter once per cycle, then retries transient
// failures up to maxAttempts with exponential spacing.
func (o *OpenSky) Fetch(ctx context.Context) ([]models.Observation, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.record(nil, ctx.Err())
		}
		// The next request slot is past the fetch deadline
		return o.record(nil, fmt.Errorf("%w: rate limiter: %v", ErrAdapterTimeout, err))
	}

	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = o.retryInterval

	attempt := 0
	obs, err := backoff.Retry(ctx, func() ([]models.Observation, error) {
		attempt++
		obs, err := o.fetchOnce(ctx)
		if err != nil {
			if statusErr, ok := err.(*httpStatusError); ok && !retryableStatus(statusErr.Code) {
				return nil, backoff.Permanent(err)
			}
			slog.Debug("OpenSky request failed", "source", o.name, "attempt", attempt, "error", err)
			return nil, err
		}
		return obs, nil
	}, backoff.WithBackOff(delays), backoff.WithMaxTries(uint(o.maxAttempts)))

	return o.record(obs, err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func (o *OpenSky) requestURL() (string, error) {
	u, err := url.Parse(o.url)
	if err != nil {
		return "", fmt.Errorf("invalid opensky url: %w", err)
	}
	q := u.Query()
	q.Set("lamin", strconv.FormatFloat(o.bbox.LatMin, 'f', 4, 64))
	q.Set("lomin", strconv.FormatFloat(o.bbox.LonMin, 'f', 4, 64))
	q.Set("lamax", strconv.FormatFloat(o.bbox.LatMax, 'f', 4, 64))
	q.Set("lomax", strconv.FormatFloat(o.bbox.LonMax, 'f', 4, 64))
	q.Set("extended", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (o *OpenSky) fetchOnce(ctx context.Context) ([]models.Observation, error) {
	reqURL, err := o.requestURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.username != "" {
		req.SetBasicAuth(o.username, o.password)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &httpStatusError{Status: resp.Status, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload openSkyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode states: %w", err)
	}

	responseTime := time.Now()
	if payload.Time > 0 {
		responseTime = time.Unix(payload.Time, 0)
	}

	out := make([]models.Observation, 0, len(payload.States))
	for _, state := range payload.States {
		obs, ok := o.stateToObservation(state, responseTime)
		if ok {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (o *OpenSky) stateToObservation(state []any, responseTime time.Time) (models.Observation, bool) {
	hex := ""
	if s := stateString(state, stateICAO24); s != nil {
		hex = models.NormalizeHex(*s)
	}
	if hex == "" {
		return models.Observation{}, false
	}

	obs := models.Observation{
		Hex:        hex,
		Flight:     stateString(state, stateCallsign),
		Lat:        stateFloat(state, stateLatitude),
		Lon:        stateFloat(state, stateLongitude),
		Track:      stateFloat(state, stateTrueTrack),
		Squawk:     stateString(state, stateSquawk),
		DataSource: string(models.SourceOpenSky),
		SourceType: models.SourceOpenSky,
		SeenAt:     responseTime,
	}

	if lastContact := stateFloat(state, stateLastContact); lastContact != nil && *lastContact > 0 {
		obs.SeenAt = time.Unix(int64(*lastContact), 0)
	}

	if onGround, ok := stateValue(state, stateOnGround).(bool); ok && onGround {
		obs.AltBaro = models.GroundAltitude()
	} else if meters := stateFloat(state, stateBaroAltitude); meters != nil {
		obs.AltBaro = models.FeetAltitude(*meters * metersToFeet)
	}

	if velocity := stateFloat(state, stateVelocity); velocity != nil {
		obs.GroundSpeed = models.Float64Ptr(*velocity * mpsToKnots)
	}

	if category := stateFloat(state, stateCategory); category != nil {
		if code, ok := openSkyCategories[int(*category)]; ok {
			obs.Category = &code
		}
	}

	return obs, true
}

func stateValue(state []any, i int) any {
	if i >= len(state) {
		return nil
	}
	return state[i]
}

func stateString(state []any, i int) *string {
	s, ok := stateValue(state, i).(string)
	if !ok {
		return nil
	}
	return models.StringPtr(s)
}

func stateFloat(state []any, i int) *float64 {
	f, ok := stateValue(state, i).(float64)
	if !ok {
		return nil
	}
	return &f
}
