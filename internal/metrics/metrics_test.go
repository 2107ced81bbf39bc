package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Booking("create", "ok")
	m.Transition("BOOKED", "CONFIRMED")
	m.WaitlistTransition("WAITING", "SEATED")
	m.SlotQuery("ok", time.Millisecond, 3)
	m.EventPublished("x", "ok")
	m.RateLimited("/x")
	assert.Nil(t, m.Registry())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Booking("create", "ok")
	m.Booking("create", "conflict")
	m.Booking("create", "conflict")
	m.Transition("BOOKED", "CANCELLED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues("create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("BOOKED", "CANCELLED")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "salonsched_bookings_total"))
}
