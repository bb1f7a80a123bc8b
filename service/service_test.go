package service

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthzHandler(t *testing.T) {
	h := NewHealthzServer(testLogger())
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServiceServesEndpoints(t *testing.T) {
	s := New(Config{HealthzAddr: "127.0.0.1:0", MetricsAddr: "127.0.0.1:0"}, testLogger())
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	resp := get(t, "http://"+s.Healthz.Addr()+"/healthz", http.Header{"Origin": {"http://example.com"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	resp = get(t, "http://"+s.Metrics.Addr()+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestHealthzRejectsOtherMethods(t *testing.T) {
	h := NewHealthzServer(testLogger())
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServiceStartPortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	s := New(Config{HealthzAddr: "127.0.0.1:0", MetricsAddr: l.Addr().String()}, testLogger())
	err = s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start metrics server")

	// the healthz port bound before the failure must be free again
	healthzAddr := s.Healthz.Addr()
	require.NotEmpty(t, healthzAddr)
	again, err := net.Listen("tcp", healthzAddr)
	require.NoError(t, err, "healthz listener left open on %s", healthzAddr)
	require.NoError(t, again.Close())
}

func TestHTTPServerShutdownReleasesPort(t *testing.T) {
	tests := []struct {
		name  string
		serve bool
	}{
		{name: "never served", serve: false},
		{name: "served", serve: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewHealthzServer(testLogger())
			require.NoError(t, srv.Listen("127.0.0.1:0"))
			addr := srv.Addr()

			served := make(chan error, 1)
			if tt.serve {
				go func() { served <- srv.Serve() }()
				resp := get(t, "http://"+addr+"/healthz", nil)
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			}

			require.NoError(t, srv.Shutdown(context.Background()))
			if tt.serve {
				assert.ErrorIs(t, <-served, http.ErrServerClosed)
			}

			l, err := net.Listen("tcp", addr)
			require.NoError(t, err)
			require.NoError(t, l.Close())
		})
	}
}

func TestServeBeforeListen(t *testing.T) {
	m := NewMetricsServer()
	assert.Empty(t, m.Addr())
	require.Error(t, m.Serve())
	assert.NoError(t, m.Shutdown(context.Background()))
}
