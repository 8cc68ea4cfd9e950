package server

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/folio-dev/folio/pkg/logging"
	"github.com/folio-dev/folio/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	requestIDKey = "request_id"
	loggerKey    = "logger"
)

// RequestID assigns every request an id such as "req_a1b2c3d4". A client
// supplied X-Request-ID is kept.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = "req_" + uuid.New().String()[:8]
		}

		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)

		c.Next()
	}
}

// AccessLog logs one line per request and stores a request-scoped logger in
// the request context for downstream packages.
func AccessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqLog := log.With(requestIDKey, c.GetString(requestIDKey))
		c.Set(loggerKey, reqLog)
		c.Request = c.Request.WithContext(logging.NewContext(c.Request.Context(), reqLog))

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		reqLog.Log(c.Request.Context(), level, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Metrics records request counts and durations labelled by route template.
func Metrics(rec *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rec == nil {
			c.Next()
			return
		}

		start := time.Now()
		rec.RecordHTTPStart()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		rec.RecordHTTPFinish(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func requestLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return fallback
}
