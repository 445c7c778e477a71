package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/vitalsgw/internal/auth"
	"github.com/danmuck/vitalsgw/internal/gateway"
	"github.com/danmuck/vitalsgw/internal/ingest"
	"github.com/danmuck/vitalsgw/internal/sink"
	"github.com/danmuck/vitalsgw/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	ready  bool
	status gateway.Status
}

func (f *fakeProvider) Status() gateway.Status { return f.status }
func (f *fakeProvider) Ready() bool            { return f.ready }

func get(t *testing.T, s *Status, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	p := &fakeProvider{}
	s := New("rs232-test", ":0", nil, p, nil)

	rr := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "rs232-test", body["service"])
	assert.Equal(t, "vitalsgw", body["kind"])
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/ready").Code)
	p.ready = true
	assert.Equal(t, http.StatusOK, get(t, s, "/ready").Code)
}

func TestStatsReportsIngestState(t *testing.T) {
	testlog.Start(t)
	p := &fakeProvider{ready: true}
	p.status = gateway.Status{
		Device:    sink.Device{ID: "rs232-test", Name: "GO-RS232"},
		Port:      "/dev/ttyUSB0",
		Connected: true,
		Stats:     ingest.Stats{BytesRead: 42, RecordsEmitted: 3, FramesEmitted: 1},
		Queues:    map[string]int{"mqtt": 2},
	}
	s := New("rs232-test", ":0", nil, p, nil)

	rr := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Device struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"device"`
		Connected bool           `json:"connected"`
		Stats     ingest.Stats   `json:"stats"`
		Pending   map[string]any `json:"pending"`
		Queues    map[string]int `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "rs232-test", body.Device.ID)
	assert.True(t, body.Connected)
	assert.Equal(t, uint64(42), body.Stats.BytesRead)
	assert.Equal(t, uint64(3), body.Stats.RecordsEmitted)
	assert.Empty(t, body.Pending)
	assert.Equal(t, 2, body.Queues["mqtt"])
}

func TestStatsRequiresTokenWhenConfigured(t *testing.T) {
	testlog.Start(t)
	s := New("rs232-test", ":0", nil, &fakeProvider{ready: true}, auth.StaticToken{Token: "abc"})

	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/stats").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New("rs232-test", ":0", nil, &fakeProvider{}, nil)
	get(t, s, "/health")

	rr := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "vitalsgw_http_requests_total")
}

func TestServeStopsWithContext(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New("rs232-test", addr, nil, &fakeProvider{ready: true}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
