package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 作答分类结果
	SubmissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Scored submissions by bucket and plan",
		},
		[]string{"bucket", "plan"},
	)

	// 作答失败，按阶段
	SubmissionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_failures_total",
			Help: "Failed submissions by pipeline stage",
		},
		[]string{"stage"},
	)

	// 外部服务耗时：extract / score / evaluate / generate
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_call_duration_seconds",
			Help:    "Duration of calls to extraction, scoring and generation services",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	FollowUpCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follow_ups_total",
			Help: "Follow-up resolution results",
		},
		[]string{"status"},
	)

	AssignmentStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "personal_assignments",
			Help: "Personal assignments by status",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SubmissionCounter)
	prometheus.MustRegister(SubmissionFailures)
	prometheus.MustRegister(UpstreamDuration)
	prometheus.MustRegister(FollowUpCounter)
	prometheus.MustRegister(AssignmentStatusGauge)
}

// ObserveUpstream 记录一次外部调用耗时
func ObserveUpstream(stage string, start time.Time) {
	UpstreamDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
