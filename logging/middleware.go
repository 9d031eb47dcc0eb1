package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDHeader carries the request ID in and out of the service.
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Middleware assigns every request an ID and logs it once it completes.
// Client errors log at warn level and server errors at error level.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		entry := logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request handled")
		}
	}
}

// FromContext returns a logger entry tagged with the request ID, if any.
func FromContext(c *gin.Context) *logrus.Entry {
	if id, ok := c.Get(requestIDKey); ok {
		return logrus.WithField("request_id", id)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
