package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/signal"
)

var _ signal.RelayMetrics = (*PrometheusCollector)(nil)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.ConnectionStateChanged(domain.ConnectionStateConnected)
	p.ConnectionStateChanged(domain.ConnectionStateConnected)
	p.GlareResolved(true)
	p.CandidatesDrained(3)
	p.GestureEmitted(domain.GestureWink)
	p.DetectionObserved(20 * time.Millisecond)
	p.InferenceFailed()
	p.ObserveAttention(domain.AttentionMetrics{
		LocalScore:          0.9,
		RemoteScore:         0.4,
		MutualAttentionTime: 30 * time.Second,
		TotalCallTime:       60 * time.Second,
	})

	p.ClientConnected()
	p.ClientConnected()
	p.ClientDisconnected()
	p.RoomCount(4)
	p.MessageRelayed(domain.SignalOffer)
	p.MessageRejected("rate_limited")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.connectionStates.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.glareResolutions.WithLabelValues("true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.candidatesDrained))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.gesturesEmitted.WithLabelValues("wink")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.inferenceFailures))
	assert.Equal(t, 0.9, testutil.ToFloat64(p.attentionScore.WithLabelValues("local")))
	assert.Equal(t, 0.5, testutil.ToFloat64(p.mutualAttention))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.relayConnections))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.relayRooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.relayMessages.WithLabelValues("offer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.relayRejected.WithLabelValues("rate_limited")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.detectionDuration))

	// a second collector on the same registry would collide
	assert.Panics(t, func() { NewPrometheusCollector(reg) })
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()
	h.AddRedisCheck(fakePinger{}, time.Minute, time.Second)
	h.AddRelayCheck(func() (int, int) { return 1, 5 }, 10, time.Minute)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, map[string]string{"redis": StatusHealthy, "relay": StatusHealthy}, status.Checks)
	assert.True(t, h.IsReady(context.Background()))

	h.AddRelayCheck(func() (int, int) { return 1, 50 }, 10, time.Minute)
	h.AddCheck("model", func(ctx context.Context) error { return errors.New("landmark service unreachable") }, time.Minute, time.Second)
	status = h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "landmark service unreachable", status.Checks["model"])
	assert.Contains(t, h.Last(), "model: landmark service unreachable")
}

func TestHealthChecker_BackgroundRefresh(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("redis", fakePinger{err: errors.New("connection refused")}.Ping, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartBackgroundChecks(ctx)

	require.Eventually(t, func() bool {
		return len(h.Last()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"redis: connection refused"}, h.Last())
}

func TestReadinessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthChecker()
	down := false
	h.AddCheck("redis", func(ctx context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, time.Minute, time.Second)

	r := gin.New()
	r.GET("/ready", h.ReadinessHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "down", body.Checks["redis"])
}
