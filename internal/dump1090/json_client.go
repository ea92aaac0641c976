package dump1090

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flight_collector/internal/models"
)

// Report is the aircraft.json document served by dump1090-fa, readsb and tar1090
type Report struct {
	Now      float64    `json:"now"`
	Messages uint64     `json:"messages"`
	Aircraft []Aircraft `json:"aircraft"`
}

// Aircraft is one entry of aircraft.json. Fields the receiver has not decoded are omitted.
type Aircraft struct {
	Hex          string           `json:"hex"`
	Flight       *string          `json:"flight,omitempty"`
	Registration *string          `json:"r,omitempty"`
	TypeCode     *string          `json:"t,omitempty"`
	Lat          *float64         `json:"lat,omitempty"`
	Lon          *float64         `json:"lon,omitempty"`
	AltBaro      *models.Altitude `json:"alt_baro,omitempty"`
	GroundSpeed  *float64         `json:"gs,omitempty"`
	Track        *float64         `json:"track,omitempty"`
	Squawk       *string          `json:"squawk,omitempty"`
	Category     *string          `json:"category,omitempty"`
	Seen         *float64         `json:"seen,omitempty"` // seconds since last message
}

// JSONClient polls a receiver's aircraft.json over HTTP
type JSONClient struct {
	url        string
	httpClient *http.Client
}

func NewJSONClient(url string, httpClient *http.Client) *JSONClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &JSONClient{url: url, httpClient: httpClient}
}

// URL returns the configured feed URL
func (c *JSONClient) URL() string {
	return c.url
}

// FetchReport downloads and decodes the current aircraft.json
func (c *JSONClient) FetchReport(ctx context.Context) (*Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("receiver returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode aircraft.json: %w", err)
	}
	return &report, nil
}

// ReportTime converts the report's "now" field, falling back to the local clock
func (r *Report) ReportTime(fallback time.Time) time.Time {
	if r.Now <= 0 {
		return fallback
	}
	sec := int64(r.Now)
	nsec := int64((r.Now - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
