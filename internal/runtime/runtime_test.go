package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMux(t *testing.T) {
	var dbErr error
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("salonsched_bookings_total 1"))
	})
	mux := NewMux(metrics,
		ReadyCheck{Name: "db", Check: func(context.Context) error { return dbErr }},
		ReadyCheck{Name: "skipped"},
	)

	code, body := get(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	dbErr = errors.New("connection refused")
	code, body = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "db: connection refused", body)

	code, body = get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "salonsched_bookings_total")
}

func TestMuxWithoutMetrics(t *testing.T) {
	code, _ := get(t, NewMux(nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "salonsched", "warn")
	logger.Info("hidden")
	logger.Warn("shown", "component", "grpc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "salonsched", line["service"])
	assert.Equal(t, "grpc", line["component"])

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
