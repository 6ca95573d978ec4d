package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	enrollments     prometheus.Counter
	quizSubmissions *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Number of HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollments_total",
			Help: "Number of successful course enrollments.",
		}),
		quizSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Number of graded quiz submissions.",
		}, []string{"passed"}),
	}
	registry.MustRegister(
		m.requests,
		m.duration,
		m.enrollments,
		m.quizSubmissions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) observeQuiz(passed bool) {
	m.quizSubmissions.WithLabelValues(strconv.FormatBool(passed)).Inc()
}

func (m *metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			if err != nil {
				// render the error now so the final status is known
				ctx.Error(err)
			}
			status := ctx.Response().Status
			path := ctx.Path() // route template, keeps label cardinality bounded
			if path == "" {
				path = "unmatched"
			}
			m.requests.WithLabelValues(ctx.Request().Method, path, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(ctx.Request().Method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

