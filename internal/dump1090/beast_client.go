package dump1090

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"flight_collector/internal/models"

	"github.com/cenkalti/backoff/v5"
)

// BeastClient streams Beast format messages from a dump1090/readsb TCP output (usually port 30005)
type BeastClient struct {
	addr         string
	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func NewBeastClient(addr string) *BeastClient {
	return &BeastClient{
		addr:         addr,
		maxRetries:   -1, // -1 means infinite retries
		retryBackoff: 1 * time.Second,
		maxBackoff:   30 * time.Second,
	}
}

// Addr returns the configured receiver address
func (c *BeastClient) Addr() string {
	return c.addr
}

// connect establishes a TCP connection to the receiver
func (c *BeastClient) connect(ctx context.Context) error {
	dialer := net.Dialer{
		Timeout: 5 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.mu.Unlock()
	return nil
}

// StreamMessages reads frames until ctx is cancelled, reconnecting with exponential backoff
func (c *BeastClient) StreamMessages(ctx context.Context, messageChan chan<- *models.BeastMessage) error {
	retryCount := 0

	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = c.retryBackoff
	delays.MaxInterval = c.maxBackoff
	delays.Multiplier = 2
	delays.RandomizationFactor = 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !c.connected() {
			if err := c.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				retryCount++
				if c.maxRetries > 0 && retryCount > c.maxRetries {
					return fmt.Errorf("max retries (%d) exceeded", c.maxRetries)
				}
				wait := delays.NextBackOff()
				slog.Warn("Failed to connect to Beast server", "addr", c.addr, "retry", retryCount, "backoff", wait, "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			retryCount = 0
			delays.Reset()
			slog.Info("Connected to Beast server", "addr", c.addr)
		}

		err := c.readMessages(ctx, messageChan)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Warn("Beast connection error, reconnecting", "addr", c.addr, "error", err)
			c.closeConnection()
		}
	}
}

func (c *BeastClient) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *BeastClient) readMessages(ctx context.Context, messageChan chan<- *models.BeastMessage) error {
	c.mu.Lock()
	conn, reader := c.conn, c.reader
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		frame, err := readFrame(reader)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // Timeout is OK, lets ctx be checked
			}
			if errors.Is(err, errResync) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("connection closed")
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		msg, err := models.ParseBeastMessage(frame, time.Now())
		if err != nil {
			slog.Debug("Failed to parse Beast message", "error", err)
			continue
		}

		select {
		case messageChan <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var errResync = errors.New("beast stream out of sync")

// readFrame reads one frame and removes 0x1a escaping.
// The returned slice starts with the start byte and type byte.
func readFrame(r *bufio.Reader) ([]byte, error) {
	// Skip to the next start byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == models.BeastStartByte {
			break
		}
	}

	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	totalLen, err := models.GetBeastTotalLen(typeByte)
	if err != nil {
		// 0x1a 0x1a outside a frame or an unsupported type
		return nil, errResync
	}

	frame := make([]byte, 0, totalLen)
	frame = append(frame, models.BeastStartByte, typeByte)
	for len(frame) < totalLen {
		peek, err := r.Peek(1)
		if err != nil {
			return nil, err
		}
		b := peek[0]
		if b == models.BeastStartByte {
			pair, err := r.Peek(2)
			if err != nil {
				return nil, err
			}
			if pair[1] != models.BeastStartByte {
				// Unescaped start byte: a new frame began, leave it for the next read
				return nil, errResync
			}
			_, _ = r.Discard(2)
		} else {
			_, _ = r.Discard(1)
		}
		frame = append(frame, b)
	}

	return frame, nil
}

// closeConnection closes the current connection
func (c *BeastClient) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// Close closes the connection
func (c *BeastClient) Close() error {
	c.closeConnection()
	return nil
}
