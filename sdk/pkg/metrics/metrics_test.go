package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/session"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/pool"
)

var (
	_ pool.Observer    = (*Collector)(nil)
	_ session.Observer = (*Collector)(nil)
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.PoolCreated("school-a")
	c.LeaseAcquired("school-a", 3*time.Millisecond, nil)
	c.LeaseAcquired("school-a", 10*time.Second, fmt.Errorf("%w: school-a", pool.ErrPoolExhausted))
	c.SessionBound("school-a", nil)
	c.SessionBound("school-z", fmt.Errorf("%w: school-z", pool.ErrTenantUnknown))
	c.UpdateProcessed("school-a", progress.OutcomeApplied, nil)
	c.UpdateProcessed("school-a", progress.OutcomeSkipped, nil)
	c.UpdateProcessed("school-a", progress.OutcomeSkipped, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.poolsCreated.WithLabelValues("school-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.leaseFailures.WithLabelValues("school-a", session.ReasonPoolExhausted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.binds.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.binds.WithLabelValues(session.ReasonTenantUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.updates.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.updates.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.updates.WithLabelValues("error")))
}

func TestCollector_Exposition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New()
	c.RegisterGauges(func() int { return 2 }, func() int { return 7 })

	r := gin.New()
	r.Use(c.GinMiddleware(""))
	r.GET("/metrics", gin.WrapH(c.Handler()))
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "progress_relay_tenant_pools 2")
	assert.Contains(t, body, "progress_relay_sessions 7")
	assert.Contains(t, body, "progress_relay_http_request_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}
