// Package metrics exposes relay metrics on a dedicated prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	ginmiddleware "github.com/slok/go-http-metrics/middleware/gin"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/session"
)

const namespace = "progress_relay"

// Collector 实现 pool.Observer 和 session.Observer
type Collector struct {
	registry *prometheus.Registry

	poolsCreated  *prometheus.CounterVec
	leaseWait     *prometheus.HistogramVec
	leaseFailures *prometheus.CounterVec
	binds         *prometheus.CounterVec
	updates       *prometheus.CounterVec
}

// New 创建 Collector 并注册到新的 registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.poolsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_pools_created_total",
			Help:      "Tenant connection pools created",
		},
		[]string{"domain"},
	)

	c.leaseWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tenant_lease_wait_seconds",
			Help:      "Time spent waiting for a tenant connection",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		},
		[]string{"domain"},
	)

	c.leaseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_lease_failures_total",
			Help:      "Tenant connections that could not be leased",
		},
		[]string{"domain", "reason"},
	)

	c.binds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_binds_total",
			Help:      "create-connection requests by result",
		},
		[]string{"result"},
	)

	c.updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_updates_total",
			Help:      "Progress events by outcome",
		},
		[]string{"outcome"},
	)

	c.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		c.poolsCreated,
		c.leaseWait,
		c.leaseFailures,
		c.binds,
		c.updates,
	)
	return c
}

// Registry 返回内部 registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RegisterGauges 注册按需读取的当前池数量和在线会话数量
func (c *Collector) RegisterGauges(pools, sessions func() int) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tenant_pools",
			Help:      "Tenant connection pools currently open",
		}, func() float64 { return float64(pools()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live realtime sessions",
		}, func() float64 { return float64(sessions()) }),
	)
}

func (c *Collector) PoolCreated(domain string) {
	c.poolsCreated.WithLabelValues(domain).Inc()
}

func (c *Collector) LeaseAcquired(domain string, wait time.Duration, err error) {
	c.leaseWait.WithLabelValues(domain).Observe(wait.Seconds())
	if err != nil {
		c.leaseFailures.WithLabelValues(domain, session.Reason(err)).Inc()
	}
}

func (c *Collector) SessionBound(_ string, err error) {
	if err != nil {
		c.binds.WithLabelValues(session.Reason(err)).Inc()
		return
	}
	c.binds.WithLabelValues("ok").Inc()
}

func (c *Collector) UpdateProcessed(_ string, outcome progress.Outcome, err error) {
	if err != nil {
		c.updates.WithLabelValues("error").Inc()
		return
	}
	c.updates.WithLabelValues(outcome.String()).Inc()
}

// Handler /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GinMiddleware HTTP 请求指标中间件，handlerID 为空时使用路由路径
func (c *Collector) GinMiddleware(handlerID string) gin.HandlerFunc {
	mdlw := middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{
			Registry: c.registry,
			Prefix:   namespace,
		}),
	})
	return ginmiddleware.Handler(handlerID, mdlw)
}
