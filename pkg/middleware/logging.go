package middleware

import (
	"strconv"
	"time"

	"Fly8Backend/internal/metrics"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger logs every request and records it in the HTTP metrics, labelled by route pattern.
func RequestLogger(log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	log = log.Named("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			elapsed := time.Since(start)

			m.HTTPRequests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(route, req.Method).Observe(elapsed.Seconds())
			log.Debug("request",
				zap.String("method", req.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("latency", elapsed))
			return nil
		}
	}
}
