package dump1090

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flight_collector/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireFrame builds an escaped Beast frame as it appears on the TCP stream
func wireFrame(t *testing.T, msgHex string, timestamp []byte) []byte {
	t.Helper()
	msg, err := hex.DecodeString(msgHex)
	require.NoError(t, err)

	body := append([]byte{}, timestamp...)
	body = append(body, 0x90)
	body = append(body, msg...)

	out := []byte{models.BeastStartByte, models.BeastTypeModeSLong}
	for _, b := range body {
		out = append(out, b)
		if b == models.BeastStartByte {
			out = append(out, b)
		}
	}
	return out
}

func TestReadFrame_Unescapes(t *testing.T) {
	ts := []byte{0x00, 0x1a, 0x00, 0x00, 0x1a, 0x01}
	stream := append([]byte{0xff, 0x00}, wireFrame(t, "8D4840D6202CC371C32CE0576098", ts)...)

	frame, err := readFrame(bufio.NewReader(bytes.NewReader(stream)))
	require.NoError(t, err)
	require.Len(t, frame, 23)
	assert.Equal(t, ts, frame[2:8])

	msg, err := models.ParseBeastMessage(frame, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "4840d6", msg.ICAO)
	assert.Equal(t, uint8(0x90), msg.SignalLevel)
}

func TestReadFrame_ResyncOnTruncatedFrame(t *testing.T) {
	good := wireFrame(t, "8D40621D58C382D690C8AC2863A7", []byte{0, 0, 0, 0, 0, 1})
	// A frame cut short by a new start byte
	truncated := []byte{models.BeastStartByte, models.BeastTypeModeSLong, 0x00, 0x01}
	reader := bufio.NewReader(bytes.NewReader(append(truncated, good...)))

	_, err := readFrame(reader)
	assert.True(t, errors.Is(err, errResync))

	frame, err := readFrame(reader)
	require.NoError(t, err)
	msg, err := models.ParseBeastMessage(frame, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "40621d", msg.ICAO)
}

func TestBeastClient_StreamMessages(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	frames := append(
		wireFrame(t, "8D4840D6202CC371C32CE0576098", []byte{0, 0, 0, 0, 0, 1}),
		wireFrame(t, "8D40621D58C382D690C8AC2863A7", []byte{0, 0, 0, 0, 0, 2})...,
	)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(frames)
		time.Sleep(500 * time.Millisecond)
	}()

	client := NewBeastClient(listener.Addr().String())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	messageChan := make(chan *models.BeastMessage, 10)
	done := make(chan error, 1)
	go func() {
		done <- client.StreamMessages(ctx, messageChan)
	}()

	var got []string
	for len(got) < 2 {
		select {
		case msg := <-messageChan:
			got = append(got, msg.ICAO)
		case <-ctx.Done():
			t.Fatal("did not receive Beast messages in time")
		}
	}
	assert.Equal(t, []string{"4840d6", "40621d"}, got)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("StreamMessages did not exit after cancellation")
	}
}

func TestJSONClient_FetchReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"now": 1700000000.5, "messages": 10, "aircraft": [
			{"hex": "a1b2c3", "flight": "UAL12   ", "lat": 32.1, "lon": -95.2, "alt_baro": 12000, "gs": 300.5, "track": 90, "seen": 1.5},
			{"hex": "~2d0001", "alt_baro": "ground"}
		]}`))
	}))
	defer server.Close()

	client := NewJSONClient(server.URL, nil)
	report, err := client.FetchReport(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Aircraft, 2)

	first := report.Aircraft[0]
	assert.Equal(t, "a1b2c3", first.Hex)
	require.NotNil(t, first.AltBaro)
	assert.Equal(t, 12000.0, first.AltBaro.Feet)
	require.NotNil(t, first.Seen)

	second := report.Aircraft[1]
	assert.Nil(t, second.Lat)
	require.NotNil(t, second.AltBaro)
	assert.True(t, second.AltBaro.Ground)

	assert.Equal(t, time.Unix(1700000000, 500000000), report.ReportTime(time.Time{}))
}

func TestJSONClient_FetchReport_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "receiver offline", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewJSONClient(server.URL, nil).FetchReport(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receiver offline")
}
