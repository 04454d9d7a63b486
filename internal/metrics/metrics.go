package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	MessagesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_messages_total",
		Help: "Total number of inbound messages relayed",
	})
	OfflineJobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_offline_jobs_enqueued_total",
		Help: "Total number of offline notification jobs enqueued",
	})
	OfflineJobsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_offline_jobs_dropped_total",
		Help: "Total number of offline notification jobs dropped on a full queue",
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_hits_total",
		Help: "Total number of metadata cache hits",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_misses_total",
		Help: "Total number of metadata cache misses",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, MessagesRelayed,
		OfflineJobsEnqueued, OfflineJobsDropped,
		CacheHits, CacheMisses,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
