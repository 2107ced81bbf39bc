package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"salonsched/backend/internal/metrics"
)

type fakeCounter struct {
	incrFn func(ctx context.Context, key string, window time.Duration) (int64, error)
	keys   []string
}

func (f *fakeCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	f.keys = append(f.keys, key)
	return f.incrFn(ctx, key, window)
}

type salonReq struct{ salon string }

func (r salonReq) GetSalonID() string { return r.salon }

const lookupMethod = "/salonsched.v1.SalonScheduler/KioskLookup"

func peerCtx(ip string) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: 50123}})
}

func call(t *testing.T, ic grpc.UnaryServerInterceptor, ctx context.Context, method string, req any) error {
	t.Helper()
	_, err := ic(ctx, req, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	return err
}

func TestInterceptorRejectsOverLimit(t *testing.T) {
	m := metrics.New()
	l := NewLimiter(NewMemoryCounter(), Config{Limit: 2, Window: time.Minute}, nil, m)
	ic := l.UnaryServerInterceptor(lookupMethod)
	ctx := peerCtx("10.0.0.1")

	require.NoError(t, call(t, ic, ctx, lookupMethod, salonReq{"s1"}))
	require.NoError(t, call(t, ic, ctx, lookupMethod, salonReq{"s1"}))
	err := call(t, ic, ctx, lookupMethod, salonReq{"s1"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// Another salon and another caller have their own windows.
	require.NoError(t, call(t, ic, ctx, lookupMethod, salonReq{"s2"}))
	require.NoError(t, call(t, ic, peerCtx("10.0.0.2"), lookupMethod, salonReq{"s1"}))

	// Methods not listed are never limited.
	for i := 0; i < 5; i++ {
		require.NoError(t, call(t, ic, ctx, "/salonsched.v1.SalonScheduler/GetAppointment", salonReq{"s1"}))
	}

	expected := `
# HELP salonsched_rate_limited_total Requests rejected by the rate limiter.
# TYPE salonsched_rate_limited_total counter
salonsched_rate_limited_total{method="` + lookupMethod + `"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "salonsched_rate_limited_total"))
}

func TestInterceptorKeyIncludesSalonAndPeerHost(t *testing.T) {
	c := &fakeCounter{incrFn: func(ctx context.Context, key string, window time.Duration) (int64, error) { return 1, nil }}
	l := NewLimiter(c, Config{Prefix: "kiosk"}, nil, nil)
	require.NoError(t, call(t, l.UnaryServerInterceptor(lookupMethod), peerCtx("192.168.1.9"), lookupMethod, salonReq{"s1"}))
	assert.Equal(t, []string{"kiosk:" + lookupMethod + ":s1:192.168.1.9"}, c.keys)
}

func TestInterceptorCounterFailure(t *testing.T) {
	c := &fakeCounter{incrFn: func(ctx context.Context, key string, window time.Duration) (int64, error) {
		return 0, errors.New("redis down")
	}}

	open := NewLimiter(c, Config{FailOpen: true}, nil, nil)
	require.NoError(t, call(t, open.UnaryServerInterceptor(lookupMethod), peerCtx("10.0.0.1"), lookupMethod, salonReq{"s1"}))

	closed := NewLimiter(c, Config{FailOpen: false}, nil, nil)
	err := call(t, closed.UnaryServerInterceptor(lookupMethod), peerCtx("10.0.0.1"), lookupMethod, salonReq{"s1"})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestMemoryCounterWindowResets(t *testing.T) {
	c := NewMemoryCounter()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	n, _ := c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
	n, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), n)

	now = now.Add(time.Minute)
	n, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCounterEvictsExpiredWindows(t *testing.T) {
	c := NewMemoryCounter()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := c.Incr(ctx, fmt.Sprintf("rl:salon-%d:10.0.0.1", i), time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, c.windows, 100)

	now = now.Add(time.Minute)
	n, err := c.Incr(ctx, "rl:salon-0:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, c.windows, 1)
}
