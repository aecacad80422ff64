package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, handler http.HandlerFunc) (int, body) {
	t.Helper()

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return w.Code, b
}

func fails(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passes(context.Context) error { return nil }

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("ok", time.Second, passes)
	h.AddLivenessCheck("db", time.Second, fails("connection refused"))

	// Unhealthy only once the failure threshold is reached.
	runN(h.liveness[1], FailureThreshold-1)
	code, b := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", b.Status)

	runN(h.liveness[1], 1)
	code, b = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", b.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, b.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("store", time.Second, passes)

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, b.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_FailingCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("store", time.Second, fails("ping timeout"))
	h.AddLivenessCheck("goroutines", time.Second, passes)
	h.SetReady(true)

	runN(h.readiness[0], FailureThreshold)
	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"store": "ping timeout"}, b.Checks)
	assert.False(t, h.IsReady())

	// Liveness is unaffected by readiness failures.
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
}

func TestCheckRecovers(t *testing.T) {
	var down atomic.Bool
	down.Store(true)

	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if down.Load() {
			return errors.New("down")
		}
		return nil
	})
	c := h.liveness[0]

	runN(c, FailureThreshold)
	_, failed := c.failure()
	assert.True(t, failed)

	down.Store(false)
	runN(c, SuccessThreshold)
	_, failed = c.failure()
	assert.False(t, failed)
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h.SetReady(true)

	runN(h.readiness[0], FailureThreshold)
	_, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, context.DeadlineExceeded.Error(), b.Checks["slow"])
}

func TestStartPollsChecks(t *testing.T) {
	var calls atomic.Int64
	h := New()
	h.AddReadinessCheck("store", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
