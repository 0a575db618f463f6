package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/health"
	"github.com/monitoringcenter/monitoringcenter/pkg/monitoring"
	"github.com/monitoringcenter/monitoringcenter/pkg/naming"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCenter(t *testing.T) *monitoring.Center {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c := monitoring.New(monitoring.WithLogger(logger))
	require.NoError(t, c.Configure(monitoring.Config{
		Naming: monitoring.NamingConfig{
			ApplicationName: "svc",
			NodeID:          "node-1",
			PostfixPolicy:   naming.PolicyAddCompositeTypes,
		},
		Health: health.Config{Interval: time.Hour},
	}))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func newTestServer(t *testing.T, c *monitoring.Center, mutate func(*ServerConfig)) http.Handler {
	t.Helper()
	config := DefaultServerConfig()
	config.Compression = false
	if mutate != nil {
		mutate(&config)
	}
	logger, _ := test.NewNullLogger()
	return NewServer(config, c, logger).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewServer(t *testing.T) {
	c := newCenter(t)
	server := NewServer(DefaultServerConfig(), c, nil)

	require.NotNil(t, server)
	assert.Same(t, c, server.backend)
	require.NotNil(t, server.httpServer)
	assert.Equal(t, "localhost:8080", server.httpServer.Addr)
	assert.Equal(t, 10*time.Second, server.httpServer.ReadTimeout)
}

func TestHandlePing(t *testing.T) {
	h := newTestServer(t, newCenter(t), nil)

	w := get(t, h, "/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong\n", w.Body.String())
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}

func TestHandleInfo(t *testing.T) {
	h := newTestServer(t, newCenter(t), nil)

	w := get(t, h, "/info")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "monitoringcenter", response["service"])
	assert.Equal(t, "svc.node-1", response["prefix"])
	assert.Len(t, response["endpoints"], len(endpoints))
}

func TestHandleMetrics(t *testing.T) {
	c := newCenter(t)
	workers, err := c.MetricCollector("Worker")
	require.NoError(t, err)
	jobs, err := workers.GetCounter("jobs")
	require.NoError(t, err)
	require.NoError(t, jobs.Inc(4))

	other, err := c.MetricCollector("Other")
	require.NoError(t, err)
	_, err = other.GetCounter("jobs")
	require.NoError(t, err)

	h := newTestServer(t, c, nil)

	t.Run("all", func(t *testing.T) {
		w := get(t, h, "/metrics")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var values map[string]map[string]float64
		require.NoError(t, json.NewDecoder(w.Body).Decode(&values))
		assert.Len(t, values, 2)
		assert.Equal(t, 4.0, values["Worker.jobs"]["count"])
	})

	t.Run("prefix", func(t *testing.T) {
		w := get(t, h, "/metrics?prefix=Other")
		require.Equal(t, http.StatusOK, w.Code)

		var values map[string]map[string]float64
		require.NoError(t, json.NewDecoder(w.Body).Decode(&values))
		assert.Len(t, values, 1)
		assert.Contains(t, values, "Other.jobs")
	})
}

func TestHandlePrometheus(t *testing.T) {
	c := newCenter(t)
	workers, err := c.MetricCollector("Worker")
	require.NoError(t, err)
	jobs, err := workers.GetCounter("jobs")
	require.NoError(t, err)
	require.NoError(t, jobs.Inc(2))

	h := newTestServer(t, c, nil)
	w := get(t, h, "/metrics/prometheus")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "Worker_jobs{")
	assert.Contains(t, body, `node="node-1"`)
}

func TestHandleHealthChecks(t *testing.T) {
	t.Run("none registered", func(t *testing.T) {
		h := newTestServer(t, newCenter(t), nil)
		w := get(t, h, "/healthcheck")
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("all healthy", func(t *testing.T) {
		c := newCenter(t)
		require.NoError(t, c.RegisterHealthCheck("db", health.Ping()))
		require.NoError(t, c.RegisterHealthCheck("cache", health.Ping()))

		w := get(t, newTestServer(t, c, nil), "/healthcheck")
		require.Equal(t, http.StatusOK, w.Code)

		var results map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&results))
		assert.Len(t, results, 2)
		assert.Equal(t, true, results["db"]["healthy"])
	})

	t.Run("one failing", func(t *testing.T) {
		c := newCenter(t)
		require.NoError(t, c.RegisterHealthCheck("db", health.Ping()))
		require.NoError(t, c.RegisterHealthCheck("disk", health.Func(func() error {
			return fmt.Errorf("disk full")
		})))

		w := get(t, newTestServer(t, c, nil), "/healthcheck")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandleHealthCheck(t *testing.T) {
	c := newCenter(t)
	h := newTestServer(t, c, nil)

	w := get(t, h, "/healthcheck/db")
	assert.Equal(t, http.StatusNotImplemented, w.Code, "no checks at all")

	require.NoError(t, c.RegisterHealthCheck("db", health.Ping()))
	require.NoError(t, c.RegisterHealthCheck("disk", health.Func(func() error {
		return fmt.Errorf("disk full")
	})))

	w = get(t, h, "/healthcheck/db")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/healthcheck/disk")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "disk full")

	w = get(t, h, "/healthcheck/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, newCenter(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/ping", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(t, newCenter(t), func(c *ServerConfig) {
		c.Username = "admin"
		c.Password = "secret"
	})

	w := get(t, h, "/ping")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.SetBasicAuth("admin", "wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCompression(t *testing.T) {
	c := newCenter(t)
	workers, err := c.MetricCollector("Worker")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := workers.GetHistogram(fmt.Sprintf("latency%d", i))
		require.NoError(t, err)
	}

	h := newTestServer(t, c, func(c *ServerConfig) { c.Compression = true })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "{"))
}

func TestServerLifecycle(t *testing.T) {
	config := DefaultServerConfig()
	config.Address = "127.0.0.1:0"
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	server := NewServer(config, newCenter(t), logger)
	server.StartBackground()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Shutting down API server")
}
