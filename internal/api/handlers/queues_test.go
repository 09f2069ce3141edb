package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/metrics"
	"github.com/opsforge/tenantcore/internal/queue"
)

func newQueueTestHandler(t *testing.T) (*Handler, *queue.RedisQueue) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := queue.NewRedisQueue(client, "approvals", queue.RetentionPolicy{})
	h := &Handler{
		metrics: metrics.NewCollector(prometheus.NewRegistry()),
		queues:  map[string]*queue.RedisQueue{"approvals": q},
		logger:  zap.NewNop(),
	}
	return h, q
}

func queueRouterFor(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/queues/:name/stats", h.QueueStats)
	r.DELETE("/queues/:name/jobs/:jobId", h.CancelQueuedJob)
	return r
}

func TestQueueStats(t *testing.T) {
	h, q := newQueueTestHandler(t)
	r := queueRouterFor(h)

	require.NoError(t, q.Enqueue(context.Background(), &queue.Job{ID: "approval-ap_1", Type: "feature_flag"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues/approvals/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"waiting":1`)
}

func TestQueueStatsUnknownQueue(t *testing.T) {
	h, _ := newQueueTestHandler(t)
	r := queueRouterFor(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues/nope/stats", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelQueuedJob(t *testing.T) {
	h, q := newQueueTestHandler(t)
	r := queueRouterFor(h)

	require.NoError(t, q.Enqueue(context.Background(), &queue.Job{ID: "approval-ap_1", Type: "feature_flag"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/queues/approvals/jobs/approval-ap_1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelQueuedJobNotWaiting(t *testing.T) {
	h, _ := newQueueTestHandler(t)
	r := queueRouterFor(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/queues/approvals/jobs/approval-gone", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}
