package tasks

import (
	"context"
	"log/slog"
	"time"

	"flight_collector/internal/models"
)

// BeastSink receives decoded Beast messages in batches
type BeastSink interface {
	ApplyBatch(msgs []*models.BeastMessage) error
}

// BeastCollector drains a Beast message channel and hands messages to a sink in batches
type BeastCollector struct {
	sink          BeastSink
	messageChan   <-chan *models.BeastMessage
	batchSize     int           // maximum number of messages in a batch before applying
	flushInterval time.Duration // time to flush batch even if not full
}

// Default batch size is 100 messages and flush interval is 1 second
func NewBeastCollector(sink BeastSink, messageChan <-chan *models.BeastMessage) *BeastCollector {
	return NewBeastCollectorWithConfig(sink, messageChan, 100, 1*time.Second)
}

// NewBeastCollectorWithConfig creates a Beast collector with custom batch settings
func NewBeastCollectorWithConfig(sink BeastSink, messageChan <-chan *models.BeastMessage, batchSize int, flushInterval time.Duration) *BeastCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 1 * time.Second
	}
	return &BeastCollector{
		sink:          sink,
		messageChan:   messageChan,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Start blocks until the context is cancelled or the message channel is closed.
// Batches are flushed when they reach batchSize or flushInterval has passed.
func (c *BeastCollector) Start(ctx context.Context) error {
	batch := make([]*models.BeastMessage, 0, c.batchSize)

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.sink.ApplyBatch(batch); err != nil {
			slog.Error("Error applying batch of Beast messages", "batch_size", len(batch), "error", err)
		} else {
			slog.Debug("Applied batch of Beast messages", "batch_size", len(batch))
		}
		// The sink must not retain the slice
		batch = batch[:0]
	}

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushBatch()
			return ctx.Err()

		case <-ticker.C:
			flushBatch()

		case msg, ok := <-c.messageChan:
			if !ok {
				flushBatch()
				return nil
			}
			if msg == nil {
				continue
			}

			batch = append(batch, msg)

			slog.Debug("Added message to batch",
				"icao", msg.ICAO,
				"message_type", msg.MessageType,
				"signal_level", msg.SignalLevel,
				"current_batch_size", len(batch),
				"max_batch_size", c.batchSize,
			)

			if len(batch) >= c.batchSize {
				flushBatch()
			}
		}
	}
}
