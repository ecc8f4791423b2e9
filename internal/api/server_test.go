package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/tiemma/sonic-distribute/internal/coordinator"
	"github.com/tiemma/sonic-distribute/internal/events"
	"github.com/tiemma/sonic-distribute/internal/metrics"
)

type fakeProvider struct{}

func (fakeProvider) Status() coordinator.Status {
	return coordinator.Status{RunID: "run-1", State: "running", Workers: 2, Live: 2, Idle: 1, Busy: 1}
}

func (fakeProvider) Workers() []coordinator.WorkerInfo {
	return []coordinator.WorkerInfo{
		{ID: 1, Name: "WORKER-1", Status: "ready", Queued: true},
		{ID: 2, Name: "WORKER-2", Status: "busy", Current: "item-1"},
	}
}

func (fakeProvider) Metrics() metrics.Snapshot {
	return metrics.Snapshot{Dispatched: 3, Succeeded: 2, P99Latency: 4 * time.Millisecond}
}

func TestHandleStatus(t *testing.T) {
	srv := httptest.NewServer(NewServer("", fakeProvider{}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status coordinator.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, 1, status.Busy)
}

func TestHandleWorkers(t *testing.T) {
	srv := httptest.NewServer(NewServer("", fakeProvider{}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/workers")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var workers []coordinator.WorkerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&workers))
	require.Len(t, workers, 2)
	assert.Equal(t, "item-1", workers[1].Current)
}

func TestHandleMetrics(t *testing.T) {
	srv := httptest.NewServer(NewServer("", fakeProvider{}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var m MetricsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.EqualValues(t, 3, m.Dispatched)
	assert.InDelta(t, 4.0, m.P99LatencyMs, 0.001)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(NewServer("", fakeProvider{}, nil).Handler())
	defer srv.Close()

	for _, path := range []string{"/api/status", "/api/workers", "/api/metrics"} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	bus := events.NewBus()
	s := NewServer("", fakeProvider{}, bus)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.forwardEvents(ctx)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	// 接続直後のステータス
	var first map[string]any
	require.NoError(t, websocket.JSON.Receive(ws, &first))
	assert.Equal(t, "status", first["type"])

	require.Eventually(t, func() bool {
		return s.ClientCount() == 1 && bus.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(events.NewItemEvent(events.EventItemDispatched, "run-1", 2, "item-9"))

	var msg struct {
		Type  string       `json:"type"`
		Event events.Event `json:"event"`
	}
	require.NoError(t, websocket.JSON.Receive(ws, &msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, events.EventItemDispatched, msg.Event.Type)
	assert.Equal(t, "item-9", msg.Event.Data.ItemID)
}
