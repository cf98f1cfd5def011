package liveserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arb_monitor/pkg/logging"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, serverURL, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(wsURL, headers)
}

func TestServerWebSocketLifecycle(t *testing.T) {
	hub := startHub(t)
	server := NewServer(hub, logging.NewNopLogger(), []string{"*"})

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ws, _, err := dialWS(t, ts.URL, "http://test.local")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	server.BroadcastMessage(TypeFundingUpdate, map[string]interface{}{"symbol": "BTC/USDT"}, 3)

	var received Message
	require.NoError(t, ws.ReadJSON(&received))
	assert.Equal(t, TypeFundingUpdate, received.Type)
	assert.Equal(t, 3, received.TotalOpportunities)
	assert.False(t, received.Timestamp.IsZero())

	data, ok := received.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", data["symbol"])

	ws.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServerRejectsOrigins(t *testing.T) {
	hub := startHub(t)
	server := NewServer(hub, nil, []string{"http://localhost:8081"})

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed", "http://localhost:8081", true},
		{"unauthorized", "http://evil.example", false},
		{"missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, resp, err := dialWS(t, ts.URL, tt.origin)
			if tt.ok {
				require.NoError(t, err)
				ws.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestServerWildcardRejectedInProduction(t *testing.T) {
	server := NewServer(NewHub(nil), nil, []string{"*"})
	server.SetProduction(true)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://any.example")
	assert.False(t, server.checkOrigin(req))
}

func TestServerConnectionLimit(t *testing.T) {
	hub := startHub(t)
	server := NewServer(hub, nil, []string{"*"})
	server.SetMaxConnections(1)
	server.SetRateLimit(0, 0)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	first, _, err := dialWS(t, ts.URL, "http://test.local")
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := dialWS(t, ts.URL, "http://test.local")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerRateLimit(t *testing.T) {
	hub := startHub(t)
	server := NewServer(hub, nil, []string{"*"})
	server.SetRateLimit(0.001, 1)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	first, _, err := dialWS(t, ts.URL, "http://test.local")
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := dialWS(t, ts.URL, "http://test.local")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServerHealth(t *testing.T) {
	server := NewServer(NewHub(nil), nil, nil)
	server.SetHealthFunc(func() HealthReport {
		return HealthReport{Status: "degraded", Components: map[string]string{"funding": "degraded"}}
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, float64(0), body["clients"])
	assert.Equal(t, "degraded", body["components"].(map[string]interface{})["funding"])
}

func TestServerRegisteredRoutesAndMetrics(t *testing.T) {
	server := NewServer(NewHub(nil), nil, nil)
	server.HandleFunc("GET /symbols", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["BTC/USDT"]`))
	})
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/symbols", nil))
	assert.Equal(t, `["BTC/USDT"]`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(NewHub(nil), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
