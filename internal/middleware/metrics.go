package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pH0enix46/EMR/pkg/metrics"
)

const unknownTenant = "none"

type MetricsMiddleware struct {
	logger *logrus.Logger
}

func NewMetricsMiddleware(logger *logrus.Logger) *MetricsMiddleware {
	return &MetricsMiddleware{
		logger: logger,
	}
}

func (m *MetricsMiddleware) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		tenant := c.GetString(TenantContextKey)
		if tenant == "" {
			tenant = unknownTenant
		}

		// Always record basic latency
		duration := float64(time.Since(start).Milliseconds())
		metrics.EdgeRequestLatency.WithLabelValues(tenant, "total").Observe(duration)

		// Rewritten path, so cardinality follows the tenant route set
		if metrics.Config.EnablePerRoute {
			metrics.EdgeRouteLatency.WithLabelValues(tenant, c.Request.URL.Path).Observe(duration)
		}

		metrics.EdgeRequestTotal.WithLabelValues(
			tenant,
			c.Request.Method,
			metrics.GetStatusClass(c.Writer.Status()),
		).Inc()

		if c.Writer.Status() >= 500 {
			m.logger.WithFields(logrus.Fields{
				"tenant":     tenant,
				"path":       c.Request.URL.Path,
				"status":     c.Writer.Status(),
				"request_id": c.GetString(RequestIDContextKey),
			}).Warn("Request failed")
		}
	}
}
