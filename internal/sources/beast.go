package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"flight_collector/internal/config"
	"flight_collector/internal/dump1090"
	"flight_collector/internal/models"
	"flight_collector/internal/tasks"
)

// Beast tracks aircraft heard on a receiver's Beast TCP output.
// The stream is consumed in the background; Fetch returns every aircraft heard within the window.
// Positions are not decoded, so Beast observations never carry lat/lon.
type Beast struct {
	*base
	client        *dump1090.BeastClient
	window        time.Duration
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time

	mu          sync.Mutex
	aircraft    map[string]*models.Observation
	lastMessage time.Time
}

func NewBeast(name string, client *dump1090.BeastClient, cfg config.BeastConfig) *Beast {
	window := cfg.Window
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Beast{
		base:          newBase(name, models.SourceBeast),
		client:        client,
		window:        window,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		now:           time.Now,
		aircraft:      make(map[string]*models.Observation),
	}
}

// Start opens the receiver stream and feeds decoded messages into the tracker until ctx is done
func (b *Beast) Start(ctx context.Context) error {
	messageChan := make(chan *models.BeastMessage, 1000)
	collector := tasks.NewBeastCollectorWithConfig(b, messageChan, b.batchSize, b.flushInterval)

	go func() {
		if err := b.client.StreamMessages(ctx, messageChan); err != nil && ctx.Err() == nil {
			slog.Error("Beast streamer stopped", "source", b.name, "addr", b.client.Addr(), "error", err)
		}
		close(messageChan)
		if err := b.client.Close(); err != nil {
			slog.Error("Error closing Beast client", "source", b.name, "error", err)
		}
	}()

	go func() {
		_ = collector.Start(ctx)
	}()

	slog.Info("Started Beast feed", "source", b.name, "addr", b.client.Addr())
	return nil
}

// ApplyBatch folds decoded messages into the per-aircraft state
func (b *Beast) ApplyBatch(msgs []*models.BeastMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, msg := range msgs {
		if msg.ReceivedAt.After(b.lastMessage) {
			b.lastMessage = msg.ReceivedAt
		}
		if msg.ICAO == "" {
			continue
		}

		obs, ok := b.aircraft[msg.ICAO]
		if !ok {
			obs = &models.Observation{
				Hex:        msg.ICAO,
				DataSource: string(models.SourceBeast),
				SourceType: models.SourceBeast,
			}
			b.aircraft[msg.ICAO] = obs
		}
		if msg.ReceivedAt.After(obs.SeenAt) {
			obs.SeenAt = msg.ReceivedAt
		}
		if msg.Callsign != nil {
			obs.Flight = models.StringPtr(*msg.Callsign)
		}
		if msg.AltitudeFeet != nil {
			obs.AltBaro = models.FeetAltitude(*msg.AltitudeFeet)
		}
		if msg.GroundSpeed != nil {
			obs.GroundSpeed = models.Float64Ptr(*msg.GroundSpeed)
		}
		if msg.Track != nil {
			obs.Track = models.Float64Ptr(*msg.Track)
		}
	}
	return nil
}

func (b *Beast) Fetch(ctx context.Context) ([]models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return b.record(nil, err)
	}

	now := b.now()

	b.mu.Lock()
	if b.lastMessage.IsZero() || now.Sub(b.lastMessage) > b.window {
		b.mu.Unlock()
		return b.record(nil, fmt.Errorf("no messages from %s within %s", b.client.Addr(), b.window))
	}

	out := make([]models.Observation, 0, len(b.aircraft))
	for icao, obs := range b.aircraft {
		if now.Sub(obs.SeenAt) > b.window {
			delete(b.aircraft, icao)
			continue
		}
		out = append(out, *obs)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Hex < out[j].Hex })
	return b.record(out, nil)
}
